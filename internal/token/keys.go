// Package token signs access and ID tokens with per-tenant RSA keys and
// publishes the tenant's public keys as a JWKS.
package token

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SigningKey is an RS256 key owned by one tenant.
type SigningKey struct {
	TenantID  string
	KID       string
	Private   *rsa.PrivateKey
	Active    bool
	CreatedAt time.Time
}

// KeyStore yields tenant signing keys. ActiveKey generates a key on first use.
type KeyStore interface {
	ActiveKey(ctx context.Context, tenantID string) (SigningKey, error)
	// PublicKeys returns every published key of the tenant, newest first.
	PublicKeys(ctx context.Context, tenantID string) ([]SigningKey, error)
	// Rotate makes a fresh key active; previous keys stay published.
	Rotate(ctx context.Context, tenantID string) (SigningKey, error)
}

// Thumbprint derives a kid from the RFC 7638 SHA-256 thumbprint of pub.
func Thumbprint(pub *rsa.PublicKey) (string, error) {
	k, err := jwk.FromRaw(pub)
	if err != nil {
		return "", err
	}
	tp, err := k.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

func newSigningKey(tenantID string, size int) (SigningKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, size)
	if err != nil {
		return SigningKey{}, fmt.Errorf("generate rsa key: %w", err)
	}
	kid, err := Thumbprint(&priv.PublicKey)
	if err != nil {
		return SigningKey{}, err
	}
	return SigningKey{TenantID: tenantID, KID: kid, Private: priv, Active: true, CreatedAt: time.Now().UTC()}, nil
}

// MemoryKeyStore generates keys lazily and keeps them for the process
// lifetime.
type MemoryKeyStore struct {
	mu       sync.Mutex
	size     int
	keys     map[string][]SigningKey
	generate func(tenantID string, size int) (SigningKey, error)
}

func NewMemoryKeyStore(size int) *MemoryKeyStore {
	return &MemoryKeyStore{size: size, keys: map[string][]SigningKey{}, generate: newSigningKey}
}

// Add installs an existing key (e.g. loaded from a PEM file) as the active
// key of tenantID.
func (m *MemoryKeyStore) Add(k SigningKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivate(k.TenantID)
	k.Active = true
	m.keys[k.TenantID] = append([]SigningKey{k}, m.keys[k.TenantID]...)
}

// ActiveKey generates the tenant's first key outside the lock so other
// tenants keep signing meanwhile. If two callers race, the first insert wins.
func (m *MemoryKeyStore) ActiveKey(_ context.Context, tenantID string) (SigningKey, error) {
	if k, ok := m.active(tenantID); ok {
		return k, nil
	}
	k, err := m.generate(tenantID, m.size)
	if err != nil {
		return SigningKey{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.activeLocked(tenantID); ok {
		return cur, nil
	}
	m.keys[tenantID] = append([]SigningKey{k}, m.keys[tenantID]...)
	return k, nil
}

func (m *MemoryKeyStore) active(tenantID string) (SigningKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(tenantID)
}

func (m *MemoryKeyStore) activeLocked(tenantID string) (SigningKey, bool) {
	for _, k := range m.keys[tenantID] {
		if k.Active {
			return k, true
		}
	}
	return SigningKey{}, false
}

func (m *MemoryKeyStore) PublicKeys(ctx context.Context, tenantID string) ([]SigningKey, error) {
	if _, err := m.ActiveKey(ctx, tenantID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SigningKey(nil), m.keys[tenantID]...), nil
}

func (m *MemoryKeyStore) Rotate(_ context.Context, tenantID string) (SigningKey, error) {
	k, err := m.generate(tenantID, m.size)
	if err != nil {
		return SigningKey{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivate(tenantID)
	m.keys[tenantID] = append([]SigningKey{k}, m.keys[tenantID]...)
	return k, nil
}

func (m *MemoryKeyStore) deactivate(tenantID string) {
	for i := range m.keys[tenantID] {
		m.keys[tenantID][i].Active = false
	}
}
