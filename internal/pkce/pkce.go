// Package pkce verifies RFC 7636 code verifiers against stored challenges.
package pkce

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

// ValidMethod reports whether m is a supported code_challenge_method.
func ValidMethod(m string) bool {
	return m == MethodPlain || m == MethodS256
}

// Challenge derives the challenge for verifier under method.
func Challenge(method, verifier string) string {
	if method == MethodS256 {
		return oauth2.S256ChallengeFromVerifier(verifier)
	}
	return verifier
}

// Verify checks verifier against challenge. Unknown methods and empty inputs
// never verify.
func Verify(method, challenge, verifier string) bool {
	if challenge == "" || verifier == "" || !ValidMethod(method) {
		return false
	}
	computed := Challenge(method, verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
