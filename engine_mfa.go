package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/authgate/authgate/internal"
	"github.com/authgate/authgate/totp"
)

// BeginTOTPEnrollment issues a fresh TOTP secret for the account and moves
// it to [MFAPending]. The account keeps authenticating with the password
// alone until one code proves the enrollment via [Engine.ActivateTOTP].
// Calling this again discards any earlier pending secret.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, accountID string) (*TOTPProvision, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	acct, err := e.store.GetAccount(sctx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, ErrStoreUnavailable
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.store.SaveMFAEnrollment(sctx, acct.ID, secret)
	cancel()
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, acct.ID, "", nil, nil)

	return &TOTPProvision{
		Secret: totp.EncodeSecret(secret),
		URI:    e.totp.ProvisionURI(acct.Identifier, secret),
	}, nil
}

// ActivateTOTP proves a pending enrollment with one code from the
// authenticator app and moves the account to [MFAActive]. On success it
// returns the single-use backup codes in plaintext; they are never
// recoverable afterwards.
func (e *Engine) ActivateTOTP(ctx context.Context, accountID, code string) (*MFAActivation, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()

	sctx, cancel := e.storeCtx(ctx)
	acct, err := e.store.GetAccount(sctx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, ErrStoreUnavailable
	}
	if acct.MFA != MFAPending || len(acct.TOTPSecret) == 0 {
		return nil, ErrMFANotEnrolled
	}

	step, ok := e.totp.VerifyCode(acct.TOTPSecret, code, now)
	if !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, acct.ID, "", ErrMFAInvalid, func() map[string]string {
			return map[string]string{"phase": "activation"}
		})
		return nil, ErrMFAInvalid
	}

	// Burn the activation code before MFA turns on, so it cannot also pass
	// the first login. If the burn cannot be persisted the activation
	// fails and the account stays pending.
	if err := e.claimStep(ctx, acct, step); err != nil {
		return nil, err
	}

	plaintexts, records, err := e.newBackupCodes()
	if err != nil {
		return nil, err
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.store.ActivateMFA(sctx, acct.ID, records)
	cancel()
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricTOTPEnrolled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, acct.ID, "", nil, nil)

	return &MFAActivation{BackupCodes: plaintexts}, nil
}

// CompleteMFA redeems a pending login challenge with a TOTP code and
// returns the token pair. A challenge is redeemable exactly once; each code
// is accepted at most once per time step, so resubmitting an intercepted
// code fails with [ErrMFAReplay] even inside the skew window.
func (e *Engine) CompleteMFA(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()

	acct, err := e.challengeAccount(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	step, ok := e.totp.VerifyCode(acct.TOTPSecret, code, now)
	if !ok {
		return nil, e.challengeFailure(ctx, acct.ID, challengeID, auditEventMFAFailure, MetricMFAFailure, ErrMFAInvalid)
	}

	if step <= acct.LastTOTPStep {
		e.metricInc(MetricMFAReplayAttempt)
		return nil, e.challengeFailure(ctx, acct.ID, challengeID, auditEventMFAFailure, MetricMFAFailure, ErrMFAReplay)
	}

	if err := e.claimStep(ctx, acct, step); err != nil {
		if errors.Is(err, ErrMFAReplay) {
			e.metricInc(MetricMFAReplayAttempt)
		}
		return nil, e.challengeFailure(ctx, acct.ID, challengeID, auditEventMFAFailure, MetricMFAFailure, err)
	}

	return e.redeemChallenge(ctx, acct, challengeID, now, auditEventMFASuccess, MetricMFASuccess)
}

// CompleteMFAWithBackupCode redeems a pending login challenge with one of
// the single-use backup codes. The code is consumed the moment it matches,
// even if the rest of the flow fails afterwards.
func (e *Engine) CompleteMFAWithBackupCode(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()

	acct, err := e.challengeAccount(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	hash := internal.HashBackupCode(code)

	sctx, cancel := e.storeCtx(ctx)
	consumed, err := e.store.ConsumeBackupCode(sctx, acct.ID, hash)
	cancel()
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if !consumed {
		return nil, e.challengeFailure(ctx, acct.ID, challengeID, auditEventBackupCodeFailed, MetricBackupCodeFailed, ErrBackupCodeInvalid)
	}

	return e.redeemChallenge(ctx, acct, challengeID, now, auditEventBackupCodeUsed, MetricBackupCodeUsed)
}

// challengeAccount resolves a challenge to its account and checks the
// account is still eligible for second-factor completion.
func (e *Engine) challengeAccount(ctx context.Context, challengeID string) (Account, error) {
	sctx, cancel := e.storeCtx(ctx)
	record, err := e.challenges.Get(sctx, challengeID)
	cancel()
	if err != nil {
		return Account{}, mapChallengeError(err)
	}

	sctx, cancel = e.storeCtx(ctx)
	acct, err := e.store.GetAccount(sctx, record.AccountID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrMFAInvalid
		}
		return Account{}, ErrStoreUnavailable
	}
	if acct.MFA != MFAActive || len(acct.TOTPSecret) == 0 {
		return Account{}, ErrMFANotEnrolled
	}
	return acct, nil
}

// challengeFailure counts one failed completion attempt against the
// challenge and returns the error the caller should surface, emitting a
// single audit event of the given type. Exceeding the attempt cap deletes
// the challenge and upgrades the error.
func (e *Engine) challengeFailure(ctx context.Context, accountID, challengeID, event string, metric MetricID, cause error) error {
	sctx, cancel := e.storeCtx(ctx)
	exceeded, err := e.challenges.RecordFailure(sctx, challengeID, e.config.Challenge.MaxAttempts)
	cancel()

	if err != nil {
		if mapped := mapChallengeError(err); errors.Is(mapped, ErrMFAExpired) {
			cause = ErrMFAExpired
		}
	} else if exceeded {
		e.metricInc(MetricMFAAttemptsExceeded)
		e.emitAudit(ctx, auditEventMFAAttemptsExceeded, false, accountID, challengeID, ErrMFAAttemptsExceeded, nil)
		return ErrMFAAttemptsExceeded
	}

	e.metricInc(metric)
	e.emitAudit(ctx, event, false, accountID, challengeID, cause, nil)
	return cause
}

// claimStep records the accepted time step through the CAS so the same
// code cannot be accepted twice. Losing the race to a concurrent
// completion that claimed an equal or later step is a replay.
func (e *Engine) claimStep(ctx context.Context, acct Account, step int64) error {
	expected := acct.LastTOTPStep
	for i := 0; i < casRetries; i++ {
		sctx, cancel := e.storeCtx(ctx)
		err := e.store.UpdateLastTOTPStep(sctx, acct.ID, step, expected)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return ErrStoreUnavailable
		}

		sctx, cancel = e.storeCtx(ctx)
		fresh, ferr := e.store.GetAccount(sctx, acct.ID)
		cancel()
		if ferr != nil {
			return ErrStoreUnavailable
		}
		if fresh.LastTOTPStep >= step {
			return ErrMFAReplay
		}
		expected = fresh.LastTOTPStep
	}
	return ErrMFAReplay
}

// redeemChallenge deletes the challenge exactly once and issues the token
// pair. A delete that finds nothing means another request redeemed the
// same challenge first.
func (e *Engine) redeemChallenge(ctx context.Context, acct Account, challengeID string, now time.Time, auditEvent string, metric MetricID) (*LoginResult, error) {
	sctx, cancel := e.storeCtx(ctx)
	deleted, err := e.challenges.Delete(sctx, challengeID)
	cancel()
	if err != nil {
		return nil, mapChallengeError(err)
	}
	if !deleted {
		e.metricInc(MetricMFAReplayAttempt)
		e.emitAudit(ctx, auditEventMFAReplay, false, acct.ID, challengeID, ErrMFAReplay, nil)
		return nil, ErrMFAReplay
	}

	pair, err := e.issueTokens(ctx, acct.ID, acct.RefreshRotationID, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(metric)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEvent, true, acct.ID, challengeID, nil, nil)

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (e *Engine) newBackupCodes() ([]string, []BackupCodeRecord, error) {
	count := e.config.TOTP.BackupCodeCount
	plaintexts := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(e.config.TOTP.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		plaintexts = append(plaintexts, code)
		records = append(records, BackupCodeRecord{Hash: internal.HashBackupCode(code)})
	}
	return plaintexts, records, nil
}
