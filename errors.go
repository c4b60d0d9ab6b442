package authgate

import "errors"

var (
	// ErrConfiguration reports an invalid or missing configuration value.
	// It is returned from [Builder.Build] and is fatal: an engine is never
	// constructed from a configuration that fails validation.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password. The two cases are deliberately indistinguishable to the
	// caller to prevent user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is returned by [CredentialStore] implementations
	// when no account matches. The engine maps it to ErrInvalidCredentials
	// on login paths.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountLocked rejects attempts against an account inside its
	// lockout window. This is the one failure reason surfaced distinctly.
	ErrAccountLocked = errors.New("account locked")
	// ErrPasswordPolicy reports a password that violates the configured
	// policy. The concrete violations are carried by [PolicyError].
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrMFARequired signals that the account has an active second factor
	// and a challenge must be completed. [Engine.Login] reports this through
	// [LoginResult.MFARequired] rather than as an error; the sentinel exists
	// for callers that convert the pending state into an error themselves.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFANotEnrolled rejects MFA operations on accounts without an
	// enrollment in the required state.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrMFAInvalid rejects a wrong TOTP code or an unknown challenge.
	ErrMFAInvalid = errors.New("mfa challenge invalid")
	// ErrMFAExpired rejects a challenge past its TTL.
	ErrMFAExpired = errors.New("mfa challenge expired")
	// ErrMFAAttemptsExceeded rejects a challenge that accumulated too many
	// failed codes. The challenge is deleted; the caller must log in again.
	ErrMFAAttemptsExceeded = errors.New("mfa challenge attempts exceeded")
	// ErrMFAReplay rejects a TOTP code for a time step that was already
	// accepted, or a challenge completed twice.
	ErrMFAReplay = errors.New("mfa replay detected")
	// ErrBackupCodeInvalid rejects a backup code that is unknown or spent.
	ErrBackupCodeInvalid = errors.New("invalid backup code")
	// ErrTokenExpired reports a structurally valid, correctly signed token
	// past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid reports a malformed token or a bad signature.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenReused reports a refresh token whose rotation identifier was
	// superseded. The whole chain is invalidated as a side effect: the
	// holder of the current token must re-authenticate too.
	ErrTokenReused = errors.New("refresh token reuse detected")
	// ErrStoreUnavailable wraps credential store timeouts and backend
	// failures. It is transient and retryable; it is never interpreted as
	// an authentication success or failure.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrVersionConflict is returned by [CredentialStore.UpdateLockout]
	// when expectedVersion no longer matches. The engine retries with a
	// fresh read.
	ErrVersionConflict = errors.New("lockout version conflict")
	// ErrRotationConflict is returned by
	// [CredentialStore.UpdateRefreshRotation] when expectedOldID no longer
	// matches the stored rotation identifier.
	ErrRotationConflict = errors.New("refresh rotation conflict")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
