package authgate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.Issuer = "authgate-test"
	cfg.Token.AccessSecret = []byte("test-access-secret-test-access-secret")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret-test-refresh-sec")
	cfg.Password.Cost = 10
	cfg.TOTP.Issuer = "authgate-test"
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store CredentialStore) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

// fakeStore is an in-memory CredentialStore with real compare-and-swap
// semantics, so CAS retry paths behave as they would against a database.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byIdent  map[string]string

	lockoutWrites  int
	rotationWrites int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]*Account{},
		byIdent:  map[string]string{},
	}
}

func (s *fakeStore) put(acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := acct
	s.accounts[acct.ID] = &cp
	s.byIdent[acct.Identifier] = acct.ID
}

func (s *fakeStore) get(accountID string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.accounts[accountID]
}

func (s *fakeStore) GetAccount(_ context.Context, accountID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *acct, nil
}

func (s *fakeStore) GetAccountByIdentifier(_ context.Context, identifier string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIdent[identifier]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *s.accounts[id], nil
}

func (s *fakeStore) UpdateLockout(_ context.Context, accountID string, next Lockout, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Lockout.Version != expectedVersion {
		return ErrVersionConflict
	}
	next.Version = expectedVersion + 1
	acct.Lockout = next
	s.lockoutWrites++
	return nil
}

func (s *fakeStore) UpdateRefreshRotation(_ context.Context, accountID, newID, expectedOldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.RefreshRotationID != expectedOldID {
		return ErrRotationConflict
	}
	acct.RefreshRotationID = newID
	s.rotationWrites++
	return nil
}

func (s *fakeStore) SaveMFAEnrollment(_ context.Context, accountID string, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	acct.TOTPSecret = append([]byte(nil), secret...)
	acct.MFA = MFAPending
	return nil
}

func (s *fakeStore) ActivateMFA(_ context.Context, accountID string, codes []BackupCodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	acct.MFA = MFAActive
	acct.BackupCodes = append([]BackupCodeRecord(nil), codes...)
	return nil
}

func (s *fakeStore) UpdateLastTOTPStep(_ context.Context, accountID string, step, expectedStep int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.LastTOTPStep != expectedStep {
		return ErrVersionConflict
	}
	acct.LastTOTPStep = step
	return nil
}

func (s *fakeStore) ConsumeBackupCode(_ context.Context, accountID string, codeHash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return false, ErrAccountNotFound
	}
	for i, rec := range acct.BackupCodes {
		if rec.Hash == codeHash {
			acct.BackupCodes = append(acct.BackupCodes[:i], acct.BackupCodes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func seedAccount(t *testing.T, engine *Engine, store *fakeStore, id, identifier, plaintext string) {
	t.Helper()

	hash, err := engine.HashPassword(plaintext)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	store.put(Account{
		ID:           id,
		Identifier:   identifier,
		PasswordHash: hash,
	})
}

// fixClock pins the engine clock to a controllable instant. The returned
// function shifts it; challenge TTLs still follow the real wall clock, so
// tests that redeem challenges keep the fake clock near real time.
func fixClock(engine *Engine) (func(d time.Duration), time.Time) {
	base := time.Now()
	var mu sync.Mutex
	offset := time.Duration(0)

	engine.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return base.Add(offset)
	}
	return func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		offset += d
	}, base
}
