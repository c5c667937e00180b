package pkce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

// RFC 7636 appendix B.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestChallengeS256MatchesRFCVector(t *testing.T) {
	t.Parallel()
	assert.Equal(t, rfcChallenge, Challenge(MethodS256, rfcVerifier))
}

func TestVerify(t *testing.T) {
	t.Parallel()
	generated := oauth2.GenerateVerifier()

	tests := []struct {
		name      string
		method    string
		challenge string
		verifier  string
		want      bool
	}{
		{"s256 rfc vector", MethodS256, rfcChallenge, rfcVerifier, true},
		{"s256 generated", MethodS256, oauth2.S256ChallengeFromVerifier(generated), generated, true},
		{"s256 wrong verifier", MethodS256, rfcChallenge, generated, false},
		{"s256 raw challenge as verifier", MethodS256, rfcChallenge, rfcChallenge, false},
		{"plain match", MethodPlain, "abc123", "abc123", true},
		{"plain mismatch", MethodPlain, "abc123", "abc124", false},
		{"unknown method", "S512", rfcChallenge, rfcVerifier, false},
		{"empty verifier", MethodS256, rfcChallenge, "", false},
		{"empty challenge", MethodPlain, "", "x", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Verify(tt.method, tt.challenge, tt.verifier))
		})
	}
}

func TestValidMethod(t *testing.T) {
	t.Parallel()
	assert.True(t, ValidMethod("plain"))
	assert.True(t, ValidMethod("S256"))
	assert.False(t, ValidMethod("s256"))
	assert.False(t, ValidMethod(""))
}
