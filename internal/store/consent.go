package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ConsentRecord accumulates the scopes a subject granted a client. Scopes are
// only ever added.
type ConsentRecord struct {
	TenantID        string
	ClientID        string
	Subject         string
	ConsentedScopes []string
	UpdatedAt       time.Time
}

type ConsentStore interface {
	// Get returns an empty record when the subject never consented.
	Get(ctx context.Context, tenantID, clientID, subject string) (ConsentRecord, error)
	// Grant unions scopes into the record and returns the result.
	Grant(ctx context.Context, tenantID, clientID, subject string, scopes []string) (ConsentRecord, error)
}

type MemoryConsents struct {
	mu      sync.Mutex
	records map[consentKey]ConsentRecord
}

func NewMemoryConsents() *MemoryConsents {
	return &MemoryConsents{records: map[consentKey]ConsentRecord{}}
}

type consentKey struct{ tenantID, clientID, subject string }

func (m *MemoryConsents) Get(_ context.Context, tenantID, clientID, subject string) (ConsentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[consentKey{tenantID, clientID, subject}]
	if !ok {
		return ConsentRecord{TenantID: tenantID, ClientID: clientID, Subject: subject}, nil
	}
	rec.ConsentedScopes = append([]string(nil), rec.ConsentedScopes...)
	return rec, nil
}

func (m *MemoryConsents) Grant(_ context.Context, tenantID, clientID, subject string, scopes []string) (ConsentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := consentKey{tenantID, clientID, subject}
	rec := m.records[k]
	rec.TenantID, rec.ClientID, rec.Subject = tenantID, clientID, subject
	rec.ConsentedScopes = unionSorted(rec.ConsentedScopes, scopes)
	rec.UpdatedAt = time.Now()
	m.records[k] = rec
	out := rec
	out.ConsentedScopes = append([]string(nil), rec.ConsentedScopes...)
	return out, nil
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
