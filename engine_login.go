package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/authgate/authgate/internal"
	"github.com/authgate/authgate/internal/challenge"
)

// casRetries bounds every compare-and-set loop against the store. A loop
// that loses this many races in a row reports the conflict instead of
// spinning.
const casRetries = 4

// Login authenticates identifier and plaintext password.
//
// The lockout gate runs before the password hash is consulted, so a locked
// account leaks no timing signal about whether the password was right.
// Unknown identifiers and wrong passwords both return
// [ErrInvalidCredentials]; only [ErrAccountLocked] is distinguishable.
//
// When the account has MFA active the result carries MFARequired and a
// ChallengeID instead of tokens; the caller completes the login with
// [Engine.CompleteMFA] or [Engine.CompleteMFAWithBackupCode].
func (e *Engine) Login(ctx context.Context, identifier, plaintext string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()

	sctx, cancel := e.storeCtx(ctx)
	acct, err := e.store.GetAccountByIdentifier(sctx, identifier)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "unknown_identifier"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, ErrStoreUnavailable
	}

	if lock := resolveLockout(acct.Lockout, now); lock.State == LockoutLocked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, acct.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	if err := e.hasher.Verify(acct.PasswordHash, plaintext); err != nil {
		e.recordFailure(ctx, acct, now)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	e.recordSuccess(ctx, acct, now)

	return e.finishLogin(ctx, acct, now)
}

// LoginFederated accepts an identifier whose holder was already
// authenticated by an upstream identity provider. The password step is
// skipped; the lockout gate and the second-factor step still apply.
func (e *Engine) LoginFederated(ctx context.Context, identifier string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()

	sctx, cancel := e.storeCtx(ctx)
	acct, err := e.store.GetAccountByIdentifier(sctx, identifier)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "unknown_federated_subject"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, ErrStoreUnavailable
	}

	if lock := resolveLockout(acct.Lockout, now); lock.State == LockoutLocked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, acct.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	return e.finishLogin(ctx, acct, now)
}

// finishLogin runs the part of the flow shared by password and federated
// logins: step up to MFA when active, otherwise issue the token pair.
func (e *Engine) finishLogin(ctx context.Context, acct Account, now time.Time) (*LoginResult, error) {
	if acct.MFA == MFAActive {
		challengeID, err := e.beginChallenge(ctx, acct.ID, now)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, true, acct.ID, challengeID, nil, nil)
		return &LoginResult{MFARequired: true, ChallengeID: challengeID}, nil
	}

	pair, err := e.issueTokens(ctx, acct.ID, acct.RefreshRotationID, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID, "", nil, nil)
	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// recordFailure persists one failed attempt through the lockout CAS. Two
// racing failures at the threshold cannot both observe the pre-lock
// counter; the loser refetches and sees either the bumped counter or the
// lock. Persistence trouble is swallowed: the attempt is denied either way.
func (e *Engine) recordFailure(ctx context.Context, acct Account, now time.Time) {
	current := acct.Lockout
	for i := 0; i < casRetries; i++ {
		next := lockoutAfterFailure(current, e.config.Lockout, now)

		sctx, cancel := e.storeCtx(ctx)
		err := e.store.UpdateLockout(sctx, acct.ID, next, current.Version)
		cancel()
		if err == nil {
			return
		}
		if !errors.Is(err, ErrVersionConflict) {
			return
		}

		sctx, cancel = e.storeCtx(ctx)
		fresh, ferr := e.store.GetAccount(sctx, acct.ID)
		cancel()
		if ferr != nil {
			return
		}
		current = fresh.Lockout
		if resolveLockout(current, now).State == LockoutLocked {
			// a racing failure already locked the account
			return
		}
	}
}

// recordSuccess resets the failure counter after a correct password. The
// write is skipped when there is nothing to reset.
func (e *Engine) recordSuccess(ctx context.Context, acct Account, now time.Time) {
	if acct.Lockout.State == LockoutOpen && acct.Lockout.Failures == 0 {
		return
	}

	current := acct.Lockout
	for i := 0; i < casRetries; i++ {
		next := lockoutAfterSuccess(current, now)

		sctx, cancel := e.storeCtx(ctx)
		err := e.store.UpdateLockout(sctx, acct.ID, next, current.Version)
		cancel()
		if err == nil {
			return
		}
		if !errors.Is(err, ErrVersionConflict) {
			return
		}

		sctx, cancel = e.storeCtx(ctx)
		fresh, ferr := e.store.GetAccount(sctx, acct.ID)
		cancel()
		if ferr != nil {
			return
		}
		current = fresh.Lockout
		if current.State == LockoutOpen && current.Failures == 0 {
			return
		}
	}
}

// issueTokens rotates the refresh chain forward and mints the pair. Losing
// the rotation CAS here means a concurrent login or refresh moved the
// chain; the fresh rotation id is fetched and the rotation retried, since
// concurrent logins are legitimate.
func (e *Engine) issueTokens(ctx context.Context, accountID, expectedRotationID string, now time.Time) (*TokenPair, error) {
	newID := uuid.NewString()

	expected := expectedRotationID
	for i := 0; ; i++ {
		sctx, cancel := e.storeCtx(ctx)
		err := e.store.UpdateRefreshRotation(sctx, accountID, newID, expected)
		cancel()
		if err == nil {
			break
		}
		if !errors.Is(err, ErrRotationConflict) || i >= casRetries {
			return nil, ErrStoreUnavailable
		}

		sctx, cancel = e.storeCtx(ctx)
		fresh, ferr := e.store.GetAccount(sctx, accountID)
		cancel()
		if ferr != nil {
			return nil, ErrStoreUnavailable
		}
		expected = fresh.RefreshRotationID
	}

	access, err := e.tokens.MintAccess(accountID, now)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.MintRefresh(accountID, newID, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// beginChallenge stores a pending second-factor challenge and returns its
// opaque identifier.
func (e *Engine) beginChallenge(ctx context.Context, accountID string, now time.Time) (string, error) {
	cid, err := internal.NewChallengeID()
	if err != nil {
		return "", err
	}

	record := &challenge.Record{
		AccountID: accountID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(e.config.Challenge.TTL).Unix(),
	}

	sctx, cancel := e.storeCtx(ctx)
	err = e.challenges.Save(sctx, cid.String(), record, e.config.Challenge.TTL)
	cancel()
	if err != nil {
		return "", mapChallengeError(err)
	}
	return cid.String(), nil
}
