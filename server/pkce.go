package server

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCEMethodS256 is the only supported code_challenge_method.
const PKCEMethodS256 = "S256"

var (
	// ErrPKCEVerifierMissing means a code bound to a challenge was redeemed
	// without a verifier. It maps to invalid_request.
	ErrPKCEVerifierMissing = errors.New("code_verifier is required when code_challenge is present")

	// ErrPKCEMismatch means the verifier does not produce the challenge. It
	// maps to invalid_grant.
	ErrPKCEMismatch = errors.New("code_verifier does not match code_challenge")
)

// ChallengeFromVerifier computes the S256 code challenge of verifier.
func ChallengeFromVerifier(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyPKCE checks verifier against the challenge a code was issued with.
// A code without a challenge needs no verifier. The verifier's length and
// alphabet are not checked: any verifier whose S256 transform equals the
// challenge is accepted.
func VerifyPKCE(challenge, method, verifier string) error {
	if challenge == "" {
		return nil
	}
	if verifier == "" {
		return ErrPKCEVerifierMissing
	}
	if method != PKCEMethodS256 {
		return fmt.Errorf("%w: unsupported code_challenge_method %q", ErrPKCEMismatch, method)
	}
	if subtle.ConstantTimeCompare([]byte(ChallengeFromVerifier(verifier)), []byte(challenge)) != 1 {
		return ErrPKCEMismatch
	}
	return nil
}
