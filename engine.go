package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/authgate/authgate/internal/challenge"
	"github.com/authgate/authgate/password"
	"github.com/authgate/authgate/token"
	"github.com/authgate/authgate/totp"
)

// Engine is the root of the library. One Engine serves all accounts; every
// operation is safe for concurrent use.
type Engine struct {
	config     Config
	store      CredentialStore
	policy     password.Policy
	hasher     *password.Hasher
	totp       *totp.Manager
	tokens     *token.Manager
	challenges *challenge.Store
	metrics    *Metrics
	audit      *auditDispatcher

	// now is replaced in tests
	now func() time.Time
}

// Close drains the audit dispatcher. The store and Redis client are owned
// by the caller and are not closed here.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeCtx bounds a store call with the configured timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

// VerifyAccess verifies an access token and returns the account ID it was
// minted for. This is the hot path; it never touches the store.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	start := e.now()

	claims, err := e.tokens.ParseAccess(accessToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	if err != nil {
		return "", mapTokenError(err)
	}
	return claims.Subject, nil
}

// HashPassword validates candidate against the password policy and returns
// its hash. Policy violations are reported all at once.
func (e *Engine) HashPassword(candidate string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if err := e.policy.Validate(candidate); err != nil {
		var perr *password.PolicyError
		if errors.As(err, &perr) {
			return "", fmt.Errorf("%w: %s", ErrPasswordPolicy, perr.Error())
		}
		return "", fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	hash, err := e.hasher.Hash(candidate)
	if err != nil {
		return "", err
	}
	return hash, nil
}

// CheckPasswordPolicy reports every policy rule candidate violates, or nil.
func (e *Engine) CheckPasswordPolicy(candidate string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.policy.Validate(candidate); err != nil {
		var perr *password.PolicyError
		if errors.As(err, &perr) {
			return fmt.Errorf("%w: %s", ErrPasswordPolicy, perr.Error())
		}
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	return nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

func mapChallengeError(err error) error {
	switch {
	case errors.Is(err, challenge.ErrNotFound):
		return ErrMFAInvalid
	case errors.Is(err, challenge.ErrExpired):
		return ErrMFAExpired
	case errors.Is(err, challenge.ErrBackend):
		return ErrStoreUnavailable
	default:
		return err
	}
}
