package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm for minted tokens.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 shared secrets.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired is returned when a token is past its lifetime.
	ErrExpired = errors.New("token: expired")
	// ErrInvalid is returned for any other verification failure.
	ErrInvalid = errors.New("token: invalid")
)

// Config defines signing material and lifetimes for both token kinds.
//
// With hs256, access and refresh tokens are signed with separate secrets
// so one leaked key cannot forge the other kind. With ed25519 both kinds
// share the key pair and are told apart by the "tk" claim.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	Issuer        string

	AccessSecret  []byte
	RefreshSecret []byte

	PrivateKey []byte
	PublicKey  []byte
}

// Manager mints and verifies access and refresh tokens.
//
// Manager instances are intended to be configured during initialization
// and then treated as immutable.
type Manager struct {
	config Config
}

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	TokenKind string `json:"tk"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set carried by refresh tokens. RotationID
// identifies the link of the rotation chain this token belongs to.
type RefreshClaims struct {
	TokenKind  string `json:"tk"`
	RotationID string `json:"rid"`
	jwt.RegisteredClaims
}

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.AccessSecret) < 32 {
			return nil, errors.New("token: hs256 requires access secret of at least 32 bytes")
		}
		if len(cfg.RefreshSecret) < 32 {
			return nil, errors.New("token: hs256 requires refresh secret of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("token: unsupported signing method")
	}
	return &Manager{config: cfg}, nil
}

// MintAccess signs an access token for accountID, issued at now.
func (m *Manager) MintAccess(accountID string, now time.Time) (string, error) {
	claims := AccessClaims{
		TokenKind: kindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	return m.sign(claims, kindAccess)
}

// MintRefresh signs a refresh token for accountID bound to rotationID.
func (m *Manager) MintRefresh(accountID, rotationID string, now time.Time) (string, error) {
	claims := RefreshClaims{
		TokenKind:  kindRefresh,
		RotationID: rotationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
		},
	}
	return m.sign(claims, kindRefresh)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, kindAccess); err != nil {
		return nil, err
	}
	if claims.TokenKind != kindAccess || claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, kindRefresh); err != nil {
		return nil, err
	}
	if claims.TokenKind != kindRefresh || claims.Subject == "" || claims.RotationID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) sign(claims jwt.Claims, kind string) (string, error) {
	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey(kind)
	if err != nil {
		return "", err
	}
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, kind string) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.verifyKey(kind)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !tok.Valid {
		return ErrInvalid
	}
	return nil
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey(kind string) (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		if kind == kindRefresh {
			return m.config.RefreshSecret, nil
		}
		return m.config.AccessSecret, nil
	}
	return parseEdPrivateKey(m.config.PrivateKey)
}

func (m *Manager) verifyKey(kind string) (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		if kind == kindRefresh {
			return m.config.RefreshSecret, nil
		}
		return m.config.AccessSecret, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 public key type")
	}
	return edKey, nil
}
