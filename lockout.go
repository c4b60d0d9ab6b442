package authgate

import "time"

// resolveLockout applies lazy expiry to a stored lockout. A Locked state
// whose Until has passed reads as Open with a zero failure counter; the
// stored row is only rewritten on the next recorded attempt, so expiry
// never needs a background sweeper.
func resolveLockout(l Lockout, now time.Time) Lockout {
	if l.State == LockoutLocked && !now.Before(l.Until) {
		return Lockout{State: LockoutOpen, Failures: 0, Version: l.Version}
	}
	return l
}

// lockoutAfterFailure returns the next lockout state after a failed
// credential check. Crossing MaxFailures transitions to Locked and resets
// the counter, so an account coming out of a lock window starts from a
// clean slate rather than re-locking on its first failure.
func lockoutAfterFailure(l Lockout, cfg LockoutConfig, now time.Time) Lockout {
	l = resolveLockout(l, now)
	if l.State == LockoutLocked {
		// Attempts during a lock window do not extend it.
		return l
	}
	l.Failures++
	if l.Failures >= cfg.MaxFailures {
		return Lockout{
			State:   LockoutLocked,
			Until:   now.Add(cfg.LockDuration),
			Version: l.Version,
		}
	}
	return l
}

// lockoutAfterSuccess resets the failure counter after a successful
// credential check. Success during a lock window is unreachable because
// the lockout gate rejects the attempt before credentials are checked.
func lockoutAfterSuccess(l Lockout, now time.Time) Lockout {
	l = resolveLockout(l, now)
	return Lockout{State: LockoutOpen, Failures: 0, Version: l.Version}
}
