package registry

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process registry used in dev and tests.
type Memory struct {
	mu      sync.RWMutex
	clients map[string]Client
	scopes  map[string]map[string]Scope
}

func NewMemory() *Memory {
	return &Memory{clients: map[string]Client{}, scopes: map[string]map[string]Scope{}}
}

// NewMemoryFromSeed builds a registry from a parsed seed file.
func NewMemoryFromSeed(seed Seed) (*Memory, error) {
	clients, scopes, err := seed.Resolve()
	if err != nil {
		return nil, err
	}
	m := NewMemory()
	for _, c := range clients {
		m.PutClient(c)
	}
	for _, s := range scopes {
		m.PutScope(s)
	}
	return m, nil
}

func (m *Memory) PutClient(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.TenantID+"/"+c.ClientID] = c
}

func (m *Memory) PutScope(s Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scopes[s.TenantID] == nil {
		m.scopes[s.TenantID] = map[string]Scope{}
	}
	m.scopes[s.TenantID][s.Name] = s
}

func (m *Memory) GetClient(_ context.Context, tenantID, clientID string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[tenantID+"/"+clientID]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return c, nil
}

func (m *Memory) GetScopeClaims(_ context.Context, tenantID, scope string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scopes[tenantID][scope]
	if !ok {
		return nil, ErrScopeNotFound
	}
	return append([]string(nil), s.Claims...), nil
}

func (m *Memory) ListScopes(_ context.Context, tenantID string) ([]Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Scope, 0, len(m.scopes[tenantID]))
	for _, s := range m.scopes[tenantID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
