package authgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginLocked         = "login_locked"
	auditEventMFARequired         = "mfa_required"
	auditEventMFASuccess          = "mfa_success"
	auditEventMFAFailure          = "mfa_failure"
	auditEventMFAAttemptsExceeded = "mfa_attempts_exceeded"
	auditEventMFAReplay           = "mfa_replay"
	auditEventTOTPSetupRequested  = "totp_setup_requested"
	auditEventTOTPEnabled         = "totp_enabled"
	auditEventBackupCodeUsed      = "backup_code_used"
	auditEventBackupCodeFailed    = "backup_code_failed"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshReuse        = "refresh_reuse_detected"
)

// AuditErrorCode is the stable identifier recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountNotFound     AuditErrorCode = "account_not_found"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrMFARequired         AuditErrorCode = "mfa_required"
	auditErrMFANotEnrolled      AuditErrorCode = "mfa_not_enrolled"
	auditErrMFAInvalid          AuditErrorCode = "mfa_invalid"
	auditErrMFAAttemptsExceeded AuditErrorCode = "mfa_attempts_exceeded"
	auditErrMFAReplay           AuditErrorCode = "mfa_replay"
	auditErrBackupCodeInvalid   AuditErrorCode = "backup_code_invalid"
	auditErrTokenExpired        AuditErrorCode = "token_expired"
	auditErrTokenInvalid        AuditErrorCode = "token_invalid"
	auditErrTokenReused         AuditErrorCode = "token_reused"
	auditErrVersionConflict     AuditErrorCode = "version_conflict"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	challengeID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		AccountID:   accountID,
		ChallengeID: challengeID,
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFANotEnrolled):
		return auditErrMFANotEnrolled
	case errors.Is(err, ErrMFAInvalid),
		errors.Is(err, ErrMFAExpired):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFAAttemptsExceeded):
		return auditErrMFAAttemptsExceeded
	case errors.Is(err, ErrMFAReplay):
		return auditErrMFAReplay
	case errors.Is(err, ErrBackupCodeInvalid):
		return auditErrBackupCodeInvalid
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrTokenReused):
		return auditErrTokenReused
	case errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrRotationConflict):
		return auditErrVersionConflict
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
