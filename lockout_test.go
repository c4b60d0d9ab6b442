package authgate

import (
	"testing"
	"time"
)

func testLockoutConfig() LockoutConfig {
	return LockoutConfig{MaxFailures: 5, LockDuration: 30 * time.Minute}
}

func TestLockoutFailureBelowThresholdStaysOpen(t *testing.T) {
	now := time.Now()
	l := Lockout{State: LockoutOpen, Failures: 3, Version: 7}

	next := lockoutAfterFailure(l, testLockoutConfig(), now)
	if next.State != LockoutOpen || next.Failures != 4 {
		t.Fatalf("expected open with 4 failures, got state=%d failures=%d", next.State, next.Failures)
	}
	if next.Version != 7 {
		t.Fatalf("transition must not touch the version, got %d", next.Version)
	}
}

func TestLockoutFailureAtThresholdLocksAndResetsCounter(t *testing.T) {
	now := time.Now()
	l := Lockout{State: LockoutOpen, Failures: 4}

	next := lockoutAfterFailure(l, testLockoutConfig(), now)
	if next.State != LockoutLocked {
		t.Fatal("expected locked state at threshold")
	}
	if next.Failures != 0 {
		t.Fatalf("expected counter reset to 0 on lock, got %d", next.Failures)
	}
	if want := now.Add(30 * time.Minute); !next.Until.Equal(want) {
		t.Fatalf("expected until %v, got %v", want, next.Until)
	}
}

func TestLockoutFailureDuringLockIsInert(t *testing.T) {
	now := time.Now()
	l := Lockout{State: LockoutLocked, Until: now.Add(10 * time.Minute)}

	next := lockoutAfterFailure(l, testLockoutConfig(), now)
	if next.State != LockoutLocked || !next.Until.Equal(l.Until) {
		t.Fatalf("expected unchanged lock, got state=%d until=%v", next.State, next.Until)
	}
}

func TestLockoutLazyExpiry(t *testing.T) {
	now := time.Now()
	l := Lockout{State: LockoutLocked, Until: now.Add(-time.Second), Version: 3}

	resolved := resolveLockout(l, now)
	if resolved.State != LockoutOpen || resolved.Failures != 0 {
		t.Fatalf("expected expired lock to read as open/0, got state=%d failures=%d", resolved.State, resolved.Failures)
	}
	if resolved.Version != 3 {
		t.Fatalf("expiry must preserve the version, got %d", resolved.Version)
	}

	// exactly at the boundary the lock is over
	boundary := Lockout{State: LockoutLocked, Until: now}
	if got := resolveLockout(boundary, now); got.State != LockoutOpen {
		t.Fatal("expected lock to expire at its boundary instant")
	}

	// first failure after expiry starts from a clean counter
	next := lockoutAfterFailure(l, testLockoutConfig(), now)
	if next.State != LockoutOpen || next.Failures != 1 {
		t.Fatalf("expected 1 failure after expired lock, got state=%d failures=%d", next.State, next.Failures)
	}
}

func TestLockoutSuccessResets(t *testing.T) {
	now := time.Now()
	l := Lockout{State: LockoutOpen, Failures: 4, Version: 9}

	next := lockoutAfterSuccess(l, now)
	if next.State != LockoutOpen || next.Failures != 0 {
		t.Fatalf("expected clean state after success, got state=%d failures=%d", next.State, next.Failures)
	}
	if next.Version != 9 {
		t.Fatalf("success must preserve the version, got %d", next.Version)
	}
}
