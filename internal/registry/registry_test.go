package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
tenants:
  - id: tenant1
    clients:
      - client_id: c1
        name: Example
        client_secret: s3cret
        redirect_uris: [https://example.com/callback]
        grant_types: [authorization_code, refresh_token]
        allowed_scopes: [profile, email]
      - client_id: spa
        redirect_uris: [https://spa.example.com/cb]
        grant_types: [authorization_code]
    scopes:
      - name: email
        claims: [email, email_verified]
      - name: profile
        claims: [name]
  - id: tenant2
    clients:
      - client_id: c1
        client_secret: other
        redirect_uris: [https://tenant2.example.com/cb]
        grant_types: [client_credentials]
`

func writeSeed(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFileYAML(t *testing.T) {
	seed, err := LoadFile(writeSeed(t, "registry.yaml", seedYAML))
	require.NoError(t, err)
	m, err := NewMemoryFromSeed(seed)
	require.NoError(t, err)
	ctx := context.Background()

	c, err := m.GetClient(ctx, "tenant1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "tenant1", c.TenantID)
	assert.Equal(t, []string{"code"}, c.ResponseTypes, "response types default to code")
	assert.NotEqual(t, "s3cret", c.ClientSecretHash)
	assert.True(t, c.VerifySecret("s3cret"))
	assert.False(t, c.VerifySecret("wrong"))
	assert.False(t, c.VerifySecret(""))
	assert.True(t, c.HasRedirectURI("https://example.com/callback"))
	assert.False(t, c.HasRedirectURI("https://example.com/callback/"))
	assert.True(t, c.AllowsScope("openid"))
	assert.False(t, c.AllowsScope("address"))

	spa, err := m.GetClient(ctx, "tenant1", "spa")
	require.NoError(t, err)
	assert.True(t, spa.Public())
	assert.True(t, spa.VerifySecret(""))
	assert.False(t, spa.VerifySecret("anything"))

	other, err := m.GetClient(ctx, "tenant2", "c1")
	require.NoError(t, err)
	assert.False(t, other.VerifySecret("s3cret"), "same client id in another tenant is a different client")

	claims, err := m.GetScopeClaims(ctx, "tenant1", "email")
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "email_verified"}, claims)

	_, err = m.GetScopeClaims(ctx, "tenant2", "email")
	assert.ErrorIs(t, err, ErrScopeNotFound)

	scopes, err := m.ListScopes(ctx, "tenant1")
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.Equal(t, "email", scopes[0].Name)
}

func TestLoadFileJSON(t *testing.T) {
	body := `{"tenants":[{"id":"t","clients":[{"client_id":"svc","client_secret_hash":"","grant_types":["client_credentials"]}]}]}`
	seed, err := LoadFile(writeSeed(t, "registry.json", body))
	require.NoError(t, err)
	require.Len(t, seed.Tenants, 1)
	require.Len(t, seed.Tenants[0].Clients, 1)
	assert.Equal(t, "svc", seed.Tenants[0].Clients[0].ClientID)
}

func TestLoadFileRejectsUnknownExtension(t *testing.T) {
	_, err := LoadFile(writeSeed(t, "registry.txt", "x"))
	require.Error(t, err)
}

func TestMemoryClientNotFound(t *testing.T) {
	_, err := NewMemory().GetClient(context.Background(), "tenant1", "nope")
	assert.ErrorIs(t, err, ErrClientNotFound)
}
