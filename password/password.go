package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minCost = 10
	maxCost = 31

	// bcrypt silently ignores bytes past 72; inputs longer than that are
	// rejected up front instead.
	maxInputBytes = 72
)

// ErrMismatch is returned by [Hasher.Verify] when the plaintext does not
// match the stored hash.
var ErrMismatch = errors.New("password: mismatch")

// Hasher hashes and verifies passwords with bcrypt.
//
// Hasher instances are intended to be configured during initialization and
// then treated as immutable.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost factor.
func NewHasher(cost int) (*Hasher, error) {
	if cost < minCost || cost > maxCost {
		return nil, fmt.Errorf("password: cost %d out of range [%d,%d]", cost, minCost, maxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash returns the bcrypt hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) == 0 {
		return "", errors.New("password: empty input")
	}
	if len(plaintext) > maxInputBytes {
		return "", fmt.Errorf("password: input exceeds %d bytes", maxInputBytes)
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(out), nil
}

// Verify checks plaintext against a stored hash. It returns [ErrMismatch]
// on a non-matching password and a different error when the stored hash is
// malformed.
func (h *Hasher) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return fmt.Errorf("password: verify: %w", err)
}

// NeedsRehash reports whether the stored hash was produced with a lower
// cost than currently configured, so the caller can re-hash on the next
// successful verification.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}

/*
====================================
POLICY
====================================
*/

// Policy defines the acceptance rules applied to new passwords.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireDigit   bool
	RequireSpecial bool
}

// PolicyError carries every rule the candidate password violated.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "password policy: " + strings.Join(e.Violations, "; ")
}

// Validate checks the candidate against every rule and returns a
// [*PolicyError] listing all violations, or nil when the password is
// acceptable. Length is measured in runes so multibyte characters count
// once.
func (p Policy) Validate(candidate string) error {
	var violations []string

	n := 0
	hasDigit := false
	hasSpecial := false
	for _, r := range candidate {
		n++
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			hasSpecial = true
		}
	}

	if n < p.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		violations = append(violations, fmt.Sprintf("must be at most %d characters", p.MaxLength))
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, "must contain a digit")
	}
	if p.RequireSpecial && !hasSpecial {
		violations = append(violations, "must contain a special character")
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}
