// Package totp implements time-based one-time password enrollment material
// and code verification (RFC 6238).
//
// # Verification
//
// [Manager.VerifyCode] checks a code against each time step in the
// configured skew window individually and returns the step that matched.
// Callers use the matched step for replay tracking: a code is accepted at
// most once per step, even when the skew window would otherwise admit it
// again.
//
// # Architecture boundaries
//
// This package owns secret generation, provisioning URIs, and code
// verification only. Replay persistence, backup codes, and challenge
// lifecycles belong to the Engine.
//
// # What this package must NOT do
//
//   - Persist secrets or matched steps.
//   - Import any other authgate package.
package totp
