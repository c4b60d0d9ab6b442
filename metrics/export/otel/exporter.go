package otel

import (
	"context"
	"errors"
	"fmt"

	authgate "github.com/authgate/authgate"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authgate.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   authgate.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{authgate.MetricLoginSuccess, "authgate_login_success_total", "Successful logins including MFA completions."},
	{authgate.MetricLoginFailure, "authgate_login_failure_total", "Rejected credential attempts."},
	{authgate.MetricLoginLocked, "authgate_login_locked_total", "Attempts rejected by the lockout gate."},
	{authgate.MetricMFARequired, "authgate_mfa_required_total", "Logins stepped up to a second factor."},
	{authgate.MetricMFASuccess, "authgate_mfa_success_total", "Second-factor completions with a TOTP code."},
	{authgate.MetricMFAFailure, "authgate_mfa_failure_total", "Failed second-factor completion attempts."},
	{authgate.MetricMFAReplayAttempt, "authgate_mfa_replay_total", "Second-factor codes or challenges presented twice."},
	{authgate.MetricMFAAttemptsExceeded, "authgate_mfa_attempts_exceeded_total", "Challenges cancelled after too many failures."},
	{authgate.MetricBackupCodeUsed, "authgate_backup_code_used_total", "Logins completed with a backup code."},
	{authgate.MetricBackupCodeFailed, "authgate_backup_code_failed_total", "Rejected backup code attempts."},
	{authgate.MetricTOTPEnrolled, "authgate_totp_enrolled_total", "Completed TOTP activations."},
	{authgate.MetricRefreshSuccess, "authgate_refresh_success_total", "Successful refresh token rotations."},
	{authgate.MetricRefreshFailure, "authgate_refresh_failure_total", "Rejected refresh tokens."},
	{authgate.MetricRefreshReuseDetected, "authgate_refresh_reuse_total", "Refresh chains invalidated after reuse."},
	{authgate.MetricTokenIssued, "authgate_token_issued_total", "Access/refresh pairs minted."},
}

// histogramBoundSuffix mirrors the engine's fixed latency buckets.
var histogramBoundSuffix = [8]string{"5ms", "10ms", "25ms", "50ms", "100ms", "250ms", "500ms", "inf"}

const verifyLatencyName = "authgate_verify_latency"

type observedCounter struct {
	id         authgate.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      authgate.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter bridges the engine's internal counters to an OpenTelemetry
// meter through observable instruments. A single registered callback reads
// one snapshot per collection.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histogram    *observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// New registers every engine metric on meter.
func New(meter metric.Meter, engine *authgate.Engine) (*Exporter, error) {
	return NewFromSource(meter, engine)
}

// NewFromSource is New with the snapshot source abstracted, for callers
// that wrap the engine.
func NewFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(counterDefs)),
	}

	observables := make([]metric.Observable, 0, len(counterDefs)+len(histogramBoundSuffix)+2)

	for _, def := range counterDefs {
		ins, err := meter.Int64ObservableCounter(def.name, metric.WithDescription(def.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.id, instrument: ins})
		observables = append(observables, ins)
	}

	h := &observedHistogram{id: authgate.MetricVerifyLatency}
	for i := 0; i < len(histogramBoundSuffix); i++ {
		name := verifyLatencyName + "_bucket_le_" + histogramBoundSuffix[i]
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative latency bucket count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		h.buckets[i] = ins
		observables = append(observables, ins)
	}
	countIns, err := meter.Int64ObservableGauge(verifyLatencyName+"_count", metric.WithDescription("Latency sample count."))
	if err != nil {
		return nil, fmt.Errorf("create histogram count gauge: %w", err)
	}
	h.count = countIns
	observables = append(observables, countIns)
	exporter.histogram = h

	auditDropped, err := meter.Int64ObservableCounter(
		"authgate_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		cumulative := cumulativeBuckets(snapshot.Histograms[exporter.histogram.id])
		for i := 0; i < len(cumulative); i++ {
			observer.ObserveInt64(exporter.histogram.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(exporter.histogram.count, int64(cumulative[len(cumulative)-1]))
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

// cumulativeBuckets converts per-bucket counts into the le-style running
// totals OTel consumers expect. A nil input (latency disabled) yields
// zeroes.
func cumulativeBuckets(buckets []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(buckets) {
			running += buckets[i]
		}
		out[i] = running
	}
	return out
}
