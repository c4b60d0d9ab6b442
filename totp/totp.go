package totp

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// b32 is the RFC 4648 base32 alphabet without padding, the encoding
// authenticator apps expect for shared secrets.
var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config defines the verification parameters shared between enrollment and
// login. Changing Digits, Period, or Algorithm after accounts have enrolled
// invalidates their authenticator apps.
type Config struct {
	Issuer     string
	Digits     int
	Period     int
	Skew       int
	Algorithm  string
	SecretSize int
}

// Manager generates secrets, builds provisioning URIs, and verifies codes.
type Manager struct {
	issuer     string
	digits     otp.Digits
	period     uint
	skew       int
	algorithm  otp.Algorithm
	secretSize int
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("totp: issuer is required")
	}
	var digits otp.Digits
	switch cfg.Digits {
	case 6:
		digits = otp.DigitsSix
	case 8:
		digits = otp.DigitsEight
	default:
		return nil, fmt.Errorf("totp: digits must be 6 or 8, got %d", cfg.Digits)
	}
	var algo otp.Algorithm
	switch strings.ToUpper(cfg.Algorithm) {
	case "", "SHA1":
		algo = otp.AlgorithmSHA1
	case "SHA256":
		algo = otp.AlgorithmSHA256
	case "SHA512":
		algo = otp.AlgorithmSHA512
	default:
		return nil, fmt.Errorf("totp: unsupported algorithm %q", cfg.Algorithm)
	}
	if cfg.Period < 15 {
		return nil, fmt.Errorf("totp: period must be >= 15 seconds, got %d", cfg.Period)
	}
	if cfg.Skew < 0 {
		return nil, fmt.Errorf("totp: skew must be >= 0, got %d", cfg.Skew)
	}
	if cfg.SecretSize < 20 {
		return nil, fmt.Errorf("totp: secret size must be >= 20 bytes, got %d", cfg.SecretSize)
	}
	return &Manager{
		issuer:     cfg.Issuer,
		digits:     digits,
		period:     uint(cfg.Period),
		skew:       cfg.Skew,
		algorithm:  algo,
		secretSize: cfg.SecretSize,
	}, nil
}

// EncodeSecret returns the base32 form of a raw secret, the encoding
// entered manually into an authenticator app.
func EncodeSecret(secret []byte) string {
	return b32.EncodeToString(secret)
}

// GenerateSecret returns a fresh random shared secret.
func (m *Manager) GenerateSecret() ([]byte, error) {
	secret := make([]byte, m.secretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("totp: generate secret: %w", err)
	}
	return secret, nil
}

// ProvisionURI builds the otpauth:// URI that authenticator apps consume,
// with the issuer embedded in both the label and the query per the
// Key Uri Format convention.
func (m *Manager) ProvisionURI(accountName string, secret []byte) string {
	label := url.PathEscape(m.issuer) + ":" + url.PathEscape(accountName)
	q := url.Values{}
	q.Set("secret", b32.EncodeToString(secret))
	q.Set("issuer", m.issuer)
	q.Set("algorithm", m.algorithm.String())
	q.Set("digits", m.digits.String())
	q.Set("period", strconv.FormatUint(uint64(m.period), 10))
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + label,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// VerifyCode checks code against every time step within the skew window and
// returns the matched step index on success. Each candidate step is
// validated individually at zero skew, so the caller knows exactly which
// step matched and can reject a second use of the same code.
func (m *Manager) VerifyCode(secret []byte, code string, at time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, false
	}
	encoded := b32.EncodeToString(secret)
	opts := totp.ValidateOpts{
		Period:    m.period,
		Skew:      0,
		Digits:    m.digits,
		Algorithm: m.algorithm,
	}
	period := int64(m.period)
	for offset := -m.skew; offset <= m.skew; offset++ {
		candidate := at.Add(time.Duration(int64(offset)*period) * time.Second)
		ok, err := totp.ValidateCustom(code, encoded, candidate.UTC(), opts)
		if err == nil && ok {
			return candidate.Unix() / period, true
		}
	}
	return 0, false
}

// Step returns the time step index for at, using the configured period.
func (m *Manager) Step(at time.Time) int64 {
	return at.Unix() / int64(m.period)
}
