package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// RefreshToken is durable; revocation flips Active and rows are never deleted.
type RefreshToken struct {
	ID            string
	TenantID      string
	ClientID      string
	Subject       string
	TokenHash     string
	GrantedScopes []string
	Active        bool
	DeviceName    string
	IP            string
	AuthMethods   []string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RotatedAt     *time.Time
}

func (t RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// HashToken is the lookup key for a presented refresh token value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

type RefreshTokenStore interface {
	Create(ctx context.Context, t RefreshToken) error
	// Get returns ErrNotFound when no token with hash exists in the tenant.
	Get(ctx context.Context, tenantID, tokenHash string) (RefreshToken, error)
	// Revoke deactivates the token only if it belongs to clientID. It reports
	// whether a token was flipped.
	Revoke(ctx context.Context, tenantID, clientID, tokenHash string) (bool, error)
	// Rotate swaps the hash of an active token, keeping its identity. It
	// returns ErrNotFound if oldHash is no longer active.
	Rotate(ctx context.Context, tenantID, oldHash, newHash string, expiresAt time.Time) error
}

// MemoryRefreshTokens is the in-process RefreshTokenStore.
type MemoryRefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func NewMemoryRefreshTokens() *MemoryRefreshTokens {
	return &MemoryRefreshTokens{tokens: map[string]*RefreshToken{}}
}

func memRefreshKey(tenantID, hash string) string { return tenantID + "/" + hash }

func (m *MemoryRefreshTokens) Create(_ context.Context, t RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	cp.GrantedScopes = append([]string(nil), t.GrantedScopes...)
	cp.AuthMethods = append([]string(nil), t.AuthMethods...)
	m.tokens[memRefreshKey(t.TenantID, t.TokenHash)] = &cp
	return nil
}

func (m *MemoryRefreshTokens) Get(_ context.Context, tenantID, tokenHash string) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[memRefreshKey(tenantID, tokenHash)]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	return *t, nil
}

func (m *MemoryRefreshTokens) Revoke(_ context.Context, tenantID, clientID, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[memRefreshKey(tenantID, tokenHash)]
	if !ok || t.ClientID != clientID || !t.Active {
		return false, nil
	}
	t.Active = false
	return true, nil
}

func (m *MemoryRefreshTokens) Rotate(_ context.Context, tenantID, oldHash, newHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldKey := memRefreshKey(tenantID, oldHash)
	t, ok := m.tokens[oldKey]
	if !ok || !t.Active {
		return ErrNotFound
	}
	delete(m.tokens, oldKey)
	now := time.Now()
	t.TokenHash = newHash
	t.ExpiresAt = expiresAt
	t.RotatedAt = &now
	m.tokens[memRefreshKey(tenantID, newHash)] = t
	return nil
}
