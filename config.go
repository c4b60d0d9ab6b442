package authgate

import (
	"fmt"
	"strings"
	"time"
)

// Config defines the engine configuration. It is constructed once at
// startup, validated by [Builder.Build], and treated as immutable from then
// on; no component reads configuration from anywhere else.
type Config struct {
	Token     TokenConfig
	Password  PasswordConfig
	Lockout   LockoutConfig
	TOTP      TOTPConfig
	Challenge ChallengeConfig
	Store     StoreConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access/refresh token minting and verification.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	Issuer        string

	// AccessSecret and RefreshSecret are the hs256 signing keys, one per
	// token kind so a leaked refresh key cannot forge access tokens.
	// Both must be at least 32 bytes.
	AccessSecret  []byte
	RefreshSecret []byte

	// Ed25519 key material, used when SigningMethod is "ed25519".
	PrivateKey []byte
	PublicKey  []byte
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls hashing cost and the acceptance policy.
type PasswordConfig struct {
	Cost           int // bcrypt cost factor
	MinLength      int
	MaxLength      int
	RequireDigit   bool
	RequireSpecial bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the per-account failed-attempt state machine.
type LockoutConfig struct {
	MaxFailures  int
	LockDuration time.Duration
}

// TOTPConfig controls second-factor enrollment and verification.
//
// Digits, Period, and Algorithm are configuration rather than constants,
// but changing any of them invalidates previously provisioned authenticator
// apps; existing secrets are not migrated. Algorithm defaults to SHA1,
// which is what commodity authenticator apps implement.
type TOTPConfig struct {
	Issuer     string
	Digits     int
	Period     int // seconds per time step
	Skew       int // accepted steps either side of now
	Algorithm  string
	SecretSize int // bytes of secret entropy

	BackupCodeCount  int
	BackupCodeLength int
}

// ChallengeConfig controls the Redis-backed pending MFA login challenges.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

// StoreConfig bounds every call into the [CredentialStore].
type StoreConfig struct {
	Timeout time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration the Builder starts from. Callers
// override fields and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Cost:           12,
			MinLength:      8,
			MaxLength:      64,
			RequireDigit:   true,
			RequireSpecial: true,
		},
		Lockout: LockoutConfig{
			MaxFailures:  5,
			LockDuration: 30 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:           "",
			Digits:           6,
			Period:           30,
			Skew:             1,
			Algorithm:        "SHA1",
			SecretSize:       20,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Challenge: ChallengeConfig{
			TTL:         3 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "agc",
		},
		Store: StoreConfig{
			Timeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks every configuration invariant and returns an error
// wrapping [ErrConfiguration] on the first violation. Build fails fast on
// it; no engine serves traffic with a partial configuration.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return fmt.Errorf("%w: Token AccessTTL must be > 0", ErrConfiguration)
	}
	if c.Token.RefreshTTL <= 0 {
		return fmt.Errorf("%w: Token RefreshTTL must be > 0", ErrConfiguration)
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return fmt.Errorf("%w: Token RefreshTTL must be >= AccessTTL", ErrConfiguration)
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.AccessSecret) < 32 {
			return fmt.Errorf("%w: Token AccessSecret must be >= 32 bytes", ErrConfiguration)
		}
		if len(c.Token.RefreshSecret) < 32 {
			return fmt.Errorf("%w: Token RefreshSecret must be >= 32 bytes", ErrConfiguration)
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 {
			return fmt.Errorf("%w: ed25519 requires PrivateKey", ErrConfiguration)
		}
		if len(c.Token.PublicKey) == 0 {
			return fmt.Errorf("%w: ed25519 requires PublicKey", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unsupported Token SigningMethod %q", ErrConfiguration, c.Token.SigningMethod)
	}

	// Password
	if c.Password.Cost < 10 || c.Password.Cost > 31 {
		return fmt.Errorf("%w: Password Cost must be in [10,31]", ErrConfiguration)
	}
	if c.Password.MinLength < 8 {
		return fmt.Errorf("%w: Password MinLength must be >= 8", ErrConfiguration)
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return fmt.Errorf("%w: Password MaxLength must be >= MinLength", ErrConfiguration)
	}
	if c.Password.MaxLength > 72 {
		// bcrypt ignores input beyond 72 bytes; longer maxima would accept
		// silently truncated passwords.
		return fmt.Errorf("%w: Password MaxLength must be <= 72", ErrConfiguration)
	}

	// Lockout
	if c.Lockout.MaxFailures <= 0 {
		return fmt.Errorf("%w: Lockout MaxFailures must be > 0", ErrConfiguration)
	}
	if c.Lockout.LockDuration <= 0 {
		return fmt.Errorf("%w: Lockout LockDuration must be > 0", ErrConfiguration)
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return fmt.Errorf("%w: TOTP Issuer is required", ErrConfiguration)
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return fmt.Errorf("%w: TOTP Digits must be 6 or 8", ErrConfiguration)
	}
	if c.TOTP.Period < 15 {
		return fmt.Errorf("%w: TOTP Period must be >= 15 seconds", ErrConfiguration)
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return fmt.Errorf("%w: TOTP Skew must be in [0,2]", ErrConfiguration)
	}
	if c.TOTP.SecretSize < 20 {
		return fmt.Errorf("%w: TOTP SecretSize must be >= 20 bytes", ErrConfiguration)
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return fmt.Errorf("%w: TOTP Algorithm must be SHA1, SHA256, or SHA512", ErrConfiguration)
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return fmt.Errorf("%w: TOTP BackupCodeCount must be > 0", ErrConfiguration)
	}
	if c.TOTP.BackupCodeLength < 8 {
		return fmt.Errorf("%w: TOTP BackupCodeLength must be >= 8", ErrConfiguration)
	}

	// Challenge
	if c.Challenge.TTL <= 0 {
		return fmt.Errorf("%w: Challenge TTL must be > 0", ErrConfiguration)
	}
	if c.Challenge.TTL > 15*time.Minute {
		return fmt.Errorf("%w: Challenge TTL must be <= 15m", ErrConfiguration)
	}
	if c.Challenge.MaxAttempts <= 0 {
		return fmt.Errorf("%w: Challenge MaxAttempts must be > 0", ErrConfiguration)
	}

	// Store
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("%w: Store Timeout must be > 0", ErrConfiguration)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0 when audit is enabled", ErrConfiguration)
	}

	return nil
}
