// Package keys holds the provider's single RSA signing key.
//
// A Manager is created once at process start and is immutable afterwards, so
// it can be shared by every request without locking. It signs credentials
// with RS256 under a fixed key identifier, verifies them with the same
// algorithm restriction, and exposes the public half as a JWK for the
// /.well-known/jwks.jsn document.
//
// Verification failures are reported through sentinel errors
// (ErrInvalidSignature, ErrExpired, ErrNotYetValid, ErrIssuerMismatch,
// ErrAudienceMismatch). Callers are expected to collapse them into a single
// protocol error so a client cannot learn which check failed.
package keys
