package totp

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

func testManager(t *testing.T, skew int) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		Issuer:     "authgate-test",
		Digits:     6,
		Period:     30,
		Skew:       skew,
		Algorithm:  "SHA1",
		SecretSize: 20,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func codeAt(t *testing.T, secret []byte, at time.Time) string {
	t.Helper()

	code, err := pqtotp.GenerateCodeCustom(EncodeSecret(secret), at.UTC(), pqtotp.ValidateOpts{
		Period:    30,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom failed: %v", err)
	}
	return code
}

func TestGenerateSecretSize(t *testing.T) {
	m := testManager(t, 1)

	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(secret) != 20 {
		t.Fatalf("expected 20 secret bytes, got %d", len(secret))
	}

	other, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if string(secret) == string(other) {
		t.Fatal("expected distinct secrets")
	}
}

func TestProvisionURIShape(t *testing.T) {
	m := testManager(t, 1)

	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	uri := m.ProvisionURI("alice@example.com", secret)
	if !strings.HasPrefix(uri, "otpauth://totp/authgate-test:") {
		t.Fatalf("expected issuer-labelled otpauth uri, got %s", uri)
	}
	for _, want := range []string{"secret=", "issuer=authgate-test", "digits=6", "period=30", "algorithm=SHA1"} {
		if !strings.Contains(uri, want) {
			t.Fatalf("expected %q in uri %s", want, uri)
		}
	}
}

func TestVerifyCodeReturnsMatchedStep(t *testing.T) {
	m := testManager(t, 1)
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)

	step, ok := m.VerifyCode(secret, codeAt(t, secret, now), now)
	if !ok {
		t.Fatal("expected current-step code to verify")
	}
	if want := now.Unix() / 30; step != want {
		t.Fatalf("expected step %d, got %d", want, step)
	}
}

func TestVerifyCodeSkewWindow(t *testing.T) {
	m := testManager(t, 1)
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)

	// previous step is inside a skew-1 window and reports its own step
	prev := now.Add(-30 * time.Second)
	step, ok := m.VerifyCode(secret, codeAt(t, secret, prev), now)
	if !ok {
		t.Fatal("expected previous-step code inside skew window")
	}
	if want := prev.Unix() / 30; step != want {
		t.Fatalf("expected matched step %d, got %d", want, step)
	}

	// next step too
	next := now.Add(30 * time.Second)
	if _, ok := m.VerifyCode(secret, codeAt(t, secret, next), now); !ok {
		t.Fatal("expected next-step code inside skew window")
	}

	// two steps away is outside
	if _, ok := m.VerifyCode(secret, codeAt(t, secret, now.Add(60*time.Second)), now); ok {
		t.Fatal("expected code two steps ahead to fail at skew 1")
	}
}

func TestVerifyCodeZeroSkewIsExact(t *testing.T) {
	m := testManager(t, 0)
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)

	if _, ok := m.VerifyCode(secret, codeAt(t, secret, now), now); !ok {
		t.Fatal("expected exact-step code to verify")
	}
	if _, ok := m.VerifyCode(secret, codeAt(t, secret, now.Add(-30*time.Second)), now); ok {
		t.Fatal("expected previous-step code to fail at skew 0")
	}
}

func TestVerifyCodeRejectsJunk(t *testing.T) {
	m := testManager(t, 1)
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)

	for _, code := range []string{"", "   ", "abcdef", "000000", "12345"} {
		if _, ok := m.VerifyCode(secret, code, now); ok {
			t.Fatalf("expected code %q to fail", code)
		}
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{Issuer: "", Digits: 6, Period: 30, SecretSize: 20},
		{Issuer: "x", Digits: 7, Period: 30, SecretSize: 20},
		{Issuer: "x", Digits: 6, Period: 5, SecretSize: 20},
		{Issuer: "x", Digits: 6, Period: 30, Skew: -1, SecretSize: 20},
		{Issuer: "x", Digits: 6, Period: 30, SecretSize: 10},
		{Issuer: "x", Digits: 6, Period: 30, SecretSize: 20, Algorithm: "MD5"},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config rejection", i)
		}
	}
}

func TestStep(t *testing.T) {
	m := testManager(t, 1)
	at := time.Unix(1_700_000_011, 0)
	if got, want := m.Step(at), at.Unix()/30; got != want {
		t.Fatalf("expected step %d, got %d", want, got)
	}
}
