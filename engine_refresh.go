package authgate

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Refresh rotates a refresh token: the presented token is retired and a new
// pair is minted. Presenting a token whose rotation identifier no longer
// matches the account means some link of the chain was used twice; the
// whole chain, including the newest token, is invalidated before
// [ErrTokenReused] is returned, forcing a fresh login.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", mapTokenError(err), nil)
		return nil, mapTokenError(err)
	}
	accountID := claims.Subject

	sctx, cancel := e.storeCtx(ctx)
	acct, err := e.store.GetAccount(sctx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, ErrStoreUnavailable
	}

	if acct.RefreshRotationID == "" || claims.RotationID != acct.RefreshRotationID {
		e.invalidateChain(ctx, accountID, acct.RefreshRotationID)
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuse, false, accountID, "", ErrTokenReused, nil)
		return nil, ErrTokenReused
	}

	newID := uuid.NewString()
	sctx, cancel = e.storeCtx(ctx)
	err = e.store.UpdateRefreshRotation(sctx, accountID, newID, claims.RotationID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrRotationConflict) {
			// Someone else just rotated past this token. Two holders of the
			// same link is reuse, not a retry.
			sctx, cancel = e.storeCtx(ctx)
			fresh, ferr := e.store.GetAccount(sctx, accountID)
			cancel()
			if ferr == nil {
				e.invalidateChain(ctx, accountID, fresh.RefreshRotationID)
			}
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditEventRefreshReuse, false, accountID, "", ErrTokenReused, nil)
			return nil, ErrTokenReused
		}
		return nil, ErrStoreUnavailable
	}

	access, err := e.tokens.MintAccess(accountID, now)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.MintRefresh(accountID, newID, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, accountID, "", nil, nil)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// invalidateChain clears the account's rotation identifier so every
// outstanding refresh token dies at once. Best effort under the CAS; a
// conflict means another writer is moving the chain and the loop retries
// against its value.
func (e *Engine) invalidateChain(ctx context.Context, accountID, expected string) {
	if expected == "" {
		return
	}
	for i := 0; i < casRetries; i++ {
		sctx, cancel := e.storeCtx(ctx)
		err := e.store.UpdateRefreshRotation(sctx, accountID, "", expected)
		cancel()
		if err == nil || !errors.Is(err, ErrRotationConflict) {
			return
		}

		sctx, cancel = e.storeCtx(ctx)
		fresh, ferr := e.store.GetAccount(sctx, accountID)
		cancel()
		if ferr != nil || fresh.RefreshRotationID == "" {
			return
		}
		expected = fresh.RefreshRotationID
	}
}
