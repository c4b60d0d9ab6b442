package authgate

import (
	"context"
	"time"
)

// MFAStatus represents the enrollment state of an account's second factor.
type MFAStatus uint8

const (
	// MFADisabled means no second factor is enrolled.
	MFADisabled MFAStatus = iota
	// MFAPending means an enrollment secret was issued but not yet proven.
	// Accounts in this state authenticate with the password alone; the
	// pending secret is not authoritative until one code verifies.
	MFAPending
	// MFAActive means the second factor is enrolled and required at login.
	MFAActive
)

// LockState is the tag of the [Lockout] variant.
type LockState uint8

const (
	// LockoutOpen allows attempts.
	LockoutOpen LockState = iota
	// LockoutLocked rejects all attempts until Until elapses.
	LockoutLocked
)

// Lockout is the per-account brute-force state. State is the tag: Until is
// meaningful only when State is [LockoutLocked], and Failures only when it
// is [LockoutOpen]. Version is the optimistic-concurrency token checked by
// [CredentialStore.UpdateLockout]; the store increments it on every write.
type Lockout struct {
	State    LockState
	Failures int
	Until    time.Time
	Version  uint64
}

// BackupCodeRecord stores the SHA-256 hash of a single unused backup code.
// The plaintext is shown to the user once at MFA activation and never
// persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// Account is the credential row owned by the [CredentialStore]. The engine
// reads it on every login and writes back only through the narrow update
// operations; it never persists a whole Account.
type Account struct {
	ID           string // opaque UUID
	Identifier   string // login name, unique per store
	PasswordHash string // bcrypt encoded form (tag, cost, salt, digest)

	MFA          MFAStatus
	TOTPSecret   []byte // raw secret bytes; present when MFA != MFADisabled
	LastTOTPStep int64  // highest accepted TOTP time step, for replay checks
	BackupCodes  []BackupCodeRecord

	Lockout           Lockout
	RefreshRotationID string // current valid refresh chain member; "" = none
}

// CredentialStore is the persistence contract callers implement to back the
// engine with their account database. Read-modify-write state (lockout
// counters, rotation identifiers, the last accepted TOTP step) is updated
// through compare-and-swap operations so concurrent attempts against the
// same account serialize in the store.
//
// Implementations must return [ErrAccountNotFound], [ErrVersionConflict],
// and [ErrRotationConflict] for those conditions; any other error is
// treated by the engine as a transient backend failure and surfaced as
// [ErrStoreUnavailable]. Every call receives a context already bounded by
// the configured store timeout.
type CredentialStore interface {
	GetAccount(ctx context.Context, accountID string) (Account, error)
	GetAccountByIdentifier(ctx context.Context, identifier string) (Account, error)

	// UpdateLockout replaces the account's lockout state if and only if the
	// stored Version equals expectedVersion.
	UpdateLockout(ctx context.Context, accountID string, next Lockout, expectedVersion uint64) error

	// UpdateRefreshRotation replaces the current rotation identifier if and
	// only if it still equals expectedOldID. newID may be empty to
	// invalidate the chain entirely.
	UpdateRefreshRotation(ctx context.Context, accountID, newID, expectedOldID string) error

	// SaveMFAEnrollment stores a pending TOTP secret and moves the account
	// to [MFAPending], discarding any previous pending secret.
	SaveMFAEnrollment(ctx context.Context, accountID string, secret []byte) error

	// ActivateMFA moves a pending enrollment to [MFAActive] and replaces
	// the stored backup codes with the given set.
	ActivateMFA(ctx context.Context, accountID string, codes []BackupCodeRecord) error

	// UpdateLastTOTPStep records the accepted time step if and only if the
	// stored step still equals expectedStep.
	UpdateLastTOTPStep(ctx context.Context, accountID string, step, expectedStep int64) error

	// ConsumeBackupCode removes the backup code with the given hash.
	// It reports false when no matching unused code exists. Removal is
	// permanent once it returns true, regardless of how the surrounding
	// flow ends.
	ConsumeBackupCode(ctx context.Context, accountID string, codeHash [32]byte) (bool, error)
}

// LoginResult is returned by [Engine.Login] and the MFA completion calls.
// Either the token pair is populated, or MFARequired is set and ChallengeID
// names the pending second-factor challenge.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	MFARequired bool
	ChallengeID string
}

// TokenPair holds one issued access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TOTPProvision holds the base32 secret and otpauth:// URI returned by
// [Engine.BeginTOTPEnrollment] for display to the user exactly once.
type TOTPProvision struct {
	Secret string
	URI    string
}

// MFAActivation is returned by [Engine.ActivateTOTP]. BackupCodes carries
// the plaintext single-use codes; this is the only time they exist outside
// the user's hands.
type MFAActivation struct {
	BackupCodes []string
}
