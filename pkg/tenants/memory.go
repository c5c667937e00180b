// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"os"

	"go.uber.org/zap"
)

type memProvider struct {
	log    *zap.SugaredLogger
	byHost map[string]Tenant
	byID   map[string]Tenant
}

// NewMemoryProvider builds a provider from a fixed tenant list.
func NewMemoryProvider(log *zap.SugaredLogger, list ...Tenant) Provider {
	p := &memProvider{log: log, byHost: map[string]Tenant{}, byID: map[string]Tenant{}}
	for _, t := range list {
		p.add(t)
	}
	return p
}

// NewMemoryProviderFromEnv seeds tenants from TENANT_SEED_JSON, or a single
// "default" tenant on common localhost names when unset.
func NewMemoryProviderFromEnv(log *zap.SugaredLogger) Provider {
	p := &memProvider{log: log, byHost: map[string]Tenant{}, byID: map[string]Tenant{}}
	seed := os.Getenv("TENANT_SEED_JSON")
	if seed != "" {
		var entries []seedEntry
		if err := json.Unmarshal([]byte(seed), &entries); err != nil {
			log.Warnw("TENANT_SEED_JSON parse failed", "err", err)
		}
		for _, e := range entries {
			p.add(e.tenant())
		}
		return p
	}
	dev := Tenant{ID: "default", Slug: "default"}
	p.byID[dev.ID] = dev
	for _, h := range []string{"localhost", "127.0.0.1", "host.docker.internal", "auth"} {
		dd := dev
		dd.Host = h
		p.byHost[h] = dd
	}
	return p
}

func (m *memProvider) add(t Tenant) {
	m.byID[t.ID] = t
	if t.Host != "" {
		m.byHost[t.Host] = t
	}
}

func (m *memProvider) ResolveTenantByHost(ctx context.Context, host string) (Tenant, error) {
	if t, ok := m.byHost[host]; ok {
		return t, nil
	}
	return Tenant{}, ErrNotFound
}

func (m *memProvider) ResolveTenantByID(ctx context.Context, id string) (Tenant, error) {
	if t, ok := m.byID[id]; ok {
		return t, nil
	}
	return Tenant{}, ErrNotFound
}
