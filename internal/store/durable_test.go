package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refreshStoreContract(t *testing.T, s RefreshTokenStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	tok := RefreshToken{
		ID: "9f1c1f4e-0000-4000-8000-000000000001", TenantID: "tenant1", ClientID: "c1", Subject: "u1",
		TokenHash: HashToken("value-1"), GrantedScopes: []string{"openid", "email"}, Active: true,
		DeviceName: "laptop", IP: "10.0.0.1", AuthMethods: []string{"otp"},
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.Create(ctx, tok))

	got, err := s.Get(ctx, "tenant1", HashToken("value-1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Subject)
	assert.Equal(t, []string{"otp"}, got.AuthMethods)
	assert.True(t, got.Active)

	_, err = s.Get(ctx, "tenant2", HashToken("value-1"))
	assert.ErrorIs(t, err, ErrNotFound)

	flipped, err := s.Revoke(ctx, "tenant1", "other-client", HashToken("value-1"))
	require.NoError(t, err)
	assert.False(t, flipped, "other client must not revoke")

	require.NoError(t, s.Rotate(ctx, "tenant1", HashToken("value-1"), HashToken("value-2"), now.Add(2*time.Hour)))
	_, err = s.Get(ctx, "tenant1", HashToken("value-1"))
	assert.ErrorIs(t, err, ErrNotFound)
	rotated, err := s.Get(ctx, "tenant1", HashToken("value-2"))
	require.NoError(t, err)
	assert.Equal(t, got.ID, rotated.ID)
	assert.Equal(t, "laptop", rotated.DeviceName)
	assert.NotNil(t, rotated.RotatedAt)
	assert.ErrorIs(t, s.Rotate(ctx, "tenant1", HashToken("value-1"), HashToken("value-3"), now), ErrNotFound)

	flipped, err = s.Revoke(ctx, "tenant1", "c1", HashToken("value-2"))
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = s.Revoke(ctx, "tenant1", "c1", HashToken("value-2"))
	require.NoError(t, err)
	assert.False(t, flipped, "second revoke is a no-op")

	revoked, err := s.Get(ctx, "tenant1", HashToken("value-2"))
	require.NoError(t, err)
	assert.False(t, revoked.Active)
}

func consentStoreContract(t *testing.T, s ConsentStore) {
	ctx := context.Background()
	rec, err := s.Get(ctx, "tenant1", "c1", "u1")
	require.NoError(t, err)
	assert.Empty(t, rec.ConsentedScopes)

	rec, err = s.Grant(ctx, "tenant1", "c1", "u1", []string{"openid", "email"})
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "openid"}, rec.ConsentedScopes)

	rec, err = s.Grant(ctx, "tenant1", "c1", "u1", []string{"openid", "address", "address"})
	require.NoError(t, err)
	assert.Equal(t, []string{"address", "email", "openid"}, rec.ConsentedScopes)

	rec, err = s.Get(ctx, "tenant2", "c1", "u1")
	require.NoError(t, err)
	assert.Empty(t, rec.ConsentedScopes)
}

func TestMemoryRefreshTokens(t *testing.T) { refreshStoreContract(t, NewMemoryRefreshTokens()) }

func TestMemoryConsents(t *testing.T) { consentStoreContract(t, NewMemoryConsents()) }

func TestRefreshTokenExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, RefreshToken{ExpiresAt: now}.Expired(now))
	assert.False(t, RefreshToken{ExpiresAt: now.Add(time.Second)}.Expired(now))
}
