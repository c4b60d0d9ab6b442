// Package password implements password hashing, verification, and the
// acceptance policy.
//
// # Hashing
//
// Hashes are bcrypt with a configurable cost factor. Verification is
// constant-time over the full hash comparison by construction of bcrypt
// itself; callers never compare hashes directly.
//
// # Policy
//
// [Policy.Validate] checks every rule and reports all violations at once
// in a single [PolicyError], so a caller can surface the complete list to
// the end user instead of one rule per round trip.
//
// # Architecture boundaries
//
// This package owns hashing, verification, and acceptance checks only.
// Lockout counting and credential storage belong to the Engine and its
// store.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other authgate package.
//   - Log plaintext passwords at runtime.
package password
