package authgate

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher moves events from engine call sites to the configured
// sink on a dedicated goroutine, so slow sinks never sit on a login path.
type auditDispatcher struct {
	sink        AuditSink
	queue       chan AuditEvent
	quit        chan struct{}
	done        chan struct{}
	blockOnFull bool

	dropped  atomic.Uint64
	stopping atomic.Bool
	stop     sync.Once
}

// newAuditDispatcher returns nil when auditing is disabled; a nil
// dispatcher accepts Emit and Close as no-ops.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &auditDispatcher{
		sink:        sink,
		queue:       make(chan AuditEvent, size),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		blockOnFull: !cfg.DropIfFull,
	}
	go d.forward()
	return d
}

func (d *auditDispatcher) forward() {
	defer close(d.done)

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain flushes everything queued before Close was called.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopping.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.blockOnFull {
		select {
		case d.queue <- event:
		case <-ctx.Done():
		case <-d.quit:
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.quit:
	default:
		d.dropped.Add(1)
	}
}

// Close stops accepting events, flushes the queue, and waits for the
// forwarding goroutine to finish.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stop.Do(func() {
		d.stopping.Store(true)
		close(d.quit)
		<-d.done
	})
}

// Dropped reports how many events were discarded because the queue was
// full.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
