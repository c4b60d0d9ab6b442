// Package token mints and verifies the signed access and refresh tokens.
//
// # Token kinds
//
// Access tokens are short-lived bearer credentials carrying only the
// account subject. Refresh tokens additionally carry a rotation identifier
// ("rid") that must match the identifier stored on the account; a stale
// identifier means the token belongs to a retired link of the rotation
// chain.
//
// # Verification
//
// Verification failures collapse to two sentinel errors: [ErrExpired] for
// tokens past their lifetime and [ErrInvalid] for everything else
// (signature, algorithm, malformed claims). Callers never learn which
// check rejected a forged token.
//
// # Architecture boundaries
//
// This package owns signing and parsing only. Rotation state, reuse
// detection, and persistence belong to the Engine and its store.
//
// # What this package must NOT do
//
//   - Persist tokens or rotation identifiers.
//   - Import any other authgate package.
package token
