package authgate

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate/internal/challenge"
	"github.com/authgate/authgate/password"
	"github.com/authgate/authgate/token"
	"github.com/authgate/authgate/totp"
)

// Builder assembles an [Engine]. Builders are single-use: Build returns an
// error on a second call so half-configured engines cannot be reused.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     CredentialStore
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The config is cloned so
// later mutation of cfg by the caller does not reach the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing pending MFA challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the credential store adapter. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the sink receiving audit events and enables the
// audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles verification latency buckets.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns
// the Engine. It fails fast on any missing dependency or invalid setting.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.Cost)
	if err != nil {
		return nil, err
	}

	totpManager, err := totp.NewManager(totp.Config{
		Issuer:     cfg.TOTP.Issuer,
		Digits:     cfg.TOTP.Digits,
		Period:     cfg.TOTP.Period,
		Skew:       cfg.TOTP.Skew,
		Algorithm:  cfg.TOTP.Algorithm,
		SecretSize: cfg.TOTP.SecretSize,
	})
	if err != nil {
		return nil, err
	}

	tokenManager, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		Issuer:        cfg.Token.Issuer,
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config: cfg,
		store:  b.store,
		policy: password.Policy{
			MinLength:      cfg.Password.MinLength,
			MaxLength:      cfg.Password.MaxLength,
			RequireDigit:   cfg.Password.RequireDigit,
			RequireSpecial: cfg.Password.RequireSpecial,
		},
		hasher:     hasher,
		totp:       totpManager,
		tokens:     tokenManager,
		challenges: challenge.NewStore(b.redis, cfg.Challenge.RedisPrefix),
		metrics:    NewMetrics(cfg.Metrics),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		now:        time.Now,
	}

	b.built = true
	return e, nil
}
