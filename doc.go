// Package authgate provides an identity and session security engine: bcrypt
// password verification with policy checks, per-account lockout, TOTP
// step-up MFA with single-use backup codes, and signed access/refresh token
// pairs with rotation-based reuse detection.
//
// Durable account state (password hashes, MFA secrets, lockout counters,
// refresh rotation identifiers) lives behind the caller-supplied
// [CredentialStore]. Ephemeral security state, the pending MFA login
// challenges issued between password verification and second-factor
// completion, is kept in Redis with a short TTL.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] contract, and value types. Cryptographic leaves live
// in token/, password/, and totp/; coordination helpers live under
// internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Implement persistence for account rows. That is the credential
//     store's job, including at-rest encryption of TOTP secrets.
//   - Treat a store timeout or backend error as an authentication decision.
//     Ambiguous answers always deny.
//   - Expose Redis clients or challenge encoding details in its public API.
package authgate
