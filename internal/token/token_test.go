package token

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authserver/pkg/tenants"
)

func TestGenerateKeyPairValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		size   int
		format string
		want   error
	}{
		{1024, FormatPEM, ErrInvalidKeySize},
		{0, FormatJWKS, ErrInvalidKeySize},
		{2048, "", ErrInvalidFormat},
		{2048, "pem", ErrInvalidFormat},
		{2048, "DER", ErrInvalidFormat},
	}
	for _, tt := range tests {
		_, err := GenerateKeyPair(tt.size, tt.format)
		assert.ErrorIs(t, err, tt.want, "size=%d format=%q", tt.size, tt.format)
	}
}

func TestGenerateKeyPairPEM(t *testing.T) {
	t.Parallel()
	a, err := GenerateKeyPair(2048, FormatPEM)
	require.NoError(t, err)
	b, err := GenerateKeyPair(2048, FormatPEM)
	require.NoError(t, err)

	assert.NotEqual(t, a.KID, b.KID)
	assert.NotEqual(t, a.PrivateKey, b.PrivateKey)

	priv, err := DecodePrivatePEM(a.PrivateKey.(string))
	require.NoError(t, err)
	assert.Equal(t, 2048, priv.N.BitLen())
	kid, err := Thumbprint(&priv.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, a.KID, kid, "public key must belong to the private key")
	assert.True(t, strings.HasPrefix(a.PublicKey.(string), "-----BEGIN PUBLIC KEY-----"))
}

func TestGenerateKeyPairJWKS(t *testing.T) {
	t.Parallel()
	kp, err := GenerateKeyPair(3072, FormatJWKS)
	require.NoError(t, err)

	raw, err := json.Marshal(kp)
	require.NoError(t, err)
	var decoded struct {
		KID       string `json:"kid"`
		PublicKey struct {
			Keys []map[string]any `json:"keys"`
		} `json:"publicKey"`
		PrivateKey map[string]any `json:"privateKey"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.PublicKey.Keys, 1)
	pub := decoded.PublicKey.Keys[0]
	assert.Equal(t, "RSA", pub["kty"])
	assert.Equal(t, "sig", pub["use"])
	assert.Equal(t, "AQAB", pub["e"])
	assert.Equal(t, kp.KID, pub["kid"])
	assert.NotContains(t, pub, "d", "public JWK must not carry the private exponent")
	assert.Contains(t, decoded.PrivateKey, "d")
}

func TestIssuerSignAndVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	keys := NewMemoryKeyStore(2048)
	iss := NewIssuer(keys, "https://auth.example.com/")
	tenant := tenants.Tenant{ID: "tenant1"}

	at, err := iss.SignAccessToken(ctx, AccessClaims{
		Tenant: tenant, Subject: "user-1", ClientID: "c1", GrantType: "authorization_code",
		Scopes: []string{"openid", "email"}, AMR: []string{"otp"}, TTL: time.Hour,
	})
	require.NoError(t, err)

	active, err := keys.ActiveKey(ctx, "tenant1")
	require.NoError(t, err)
	msg, err := jws.Parse([]byte(at))
	require.NoError(t, err)
	assert.Equal(t, active.KID, msg.Signatures()[0].ProtectedHeaders().KeyID())

	tok, err := iss.Verify(ctx, tenant, at)
	require.NoError(t, err)
	assert.Equal(t, "user-1", tok.Subject())
	assert.Equal(t, "https://auth.example.com", tok.Issuer())
	for _, claim := range []string{"tid", "scope", "client_id", "gty", "amr"} {
		_, ok := tok.Get(claim)
		assert.True(t, ok, "missing claim %s", claim)
	}
	scope, _ := tok.Get("scope")
	assert.Equal(t, "openid email", scope)

	_, err = iss.Verify(ctx, tenants.Tenant{ID: "tenant2"}, at)
	assert.Error(t, err, "another tenant's keys must not verify the token")
}

func TestIssuerIDTokenClaims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	iss := NewIssuer(NewMemoryKeyStore(2048), "https://auth.example.com")
	tenant := tenants.Tenant{ID: "tenant1", OAuthIssuer: "https://tenant1.example.com"}

	idt, err := iss.SignIDToken(ctx, IDClaims{
		Tenant: tenant, Subject: "user-1", ClientID: "c1", Nonce: "n-0S6", AMR: []string{"pwd"},
		AuthTime: time.Now(), AccessToken: "access", TTL: time.Hour,
	})
	require.NoError(t, err)
	tok, err := iss.Verify(ctx, tenant, idt)
	require.NoError(t, err)
	assert.Equal(t, "https://tenant1.example.com", tok.Issuer())
	assert.Equal(t, []string{"c1"}, tok.Audience())
	nonce, _ := tok.Get("nonce")
	assert.Equal(t, "n-0S6", nonce)
	atHash, _ := tok.Get("at_hash")
	assert.Equal(t, AccessTokenHash("access"), atHash)
}

func TestRotateKeepsOldKeysPublished(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	keys := NewMemoryKeyStore(2048)
	iss := NewIssuer(keys, "https://auth.example.com")
	tenant := tenants.Tenant{ID: "tenant1"}

	oldTok, err := iss.SignAccessToken(ctx, AccessClaims{Tenant: tenant, Subject: "u", ClientID: "c", TTL: time.Hour})
	require.NoError(t, err)
	first, err := keys.ActiveKey(ctx, "tenant1")
	require.NoError(t, err)
	rotated, err := keys.Rotate(ctx, "tenant1")
	require.NoError(t, err)
	assert.NotEqual(t, first.KID, rotated.KID)

	set, err := iss.JWKS(ctx, "tenant1")
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	_, ok := set.LookupKeyID(first.KID)
	assert.True(t, ok)

	_, err = iss.Verify(ctx, tenant, oldTok)
	require.NoError(t, err, "tokens signed before rotation still verify")

	active, err := keys.ActiveKey(ctx, "tenant1")
	require.NoError(t, err)
	assert.Equal(t, rotated.KID, active.KID)
}

func TestJWKSIsPublicOnly(t *testing.T) {
	t.Parallel()
	iss := NewIssuer(NewMemoryKeyStore(2048), "https://auth.example.com")
	set, err := iss.JWKS(context.Background(), "tenant1")
	require.NoError(t, err)
	k, ok := set.Key(0)
	require.True(t, ok)
	assert.Equal(t, jwk.KeyUsageType("sig"), jwk.KeyUsageType(k.KeyUsage()))
	_, isPrivate := k.(jwk.RSAPrivateKey)
	assert.False(t, isPrivate)
}

func TestMemoryKeyStoreGeneratesOutsideLock(t *testing.T) {
	t.Parallel()
	keys := NewMemoryKeyStore(2048)
	release := make(chan struct{})
	started := make(chan struct{})
	keys.generate = func(tenantID string, size int) (SigningKey, error) {
		if tenantID == "slow" {
			close(started)
			<-release
		}
		return newSigningKey(tenantID, size)
	}

	slowDone := make(chan error, 1)
	go func() {
		_, err := keys.ActiveKey(context.Background(), "slow")
		slowDone <- err
	}()
	<-started

	fastDone := make(chan error, 1)
	go func() {
		_, err := keys.ActiveKey(context.Background(), "fast")
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("key generation for one tenant blocked another tenant")
	}

	close(release)
	require.NoError(t, <-slowDone)
}

func TestMemoryKeyStoreConcurrentFirstUseAgreesOnKey(t *testing.T) {
	t.Parallel()
	keys := NewMemoryKeyStore(2048)
	const n = 8
	kids := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			k, err := keys.ActiveKey(context.Background(), "tenant1")
			if err != nil {
				kids <- ""
				return
			}
			kids <- k.KID
		}()
	}
	first := <-kids
	require.NotEmpty(t, first)
	for i := 1; i < n; i++ {
		assert.Equal(t, first, <-kids)
	}
	pub, err := keys.PublicKeys(context.Background(), "tenant1")
	require.NoError(t, err)
	assert.Len(t, pub, 1)
}
