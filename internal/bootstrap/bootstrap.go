// Package bootstrap assembles the stores, registry, key store and engine from
// configuration. Postgres and Redis are used when configured; everything
// falls back to process memory otherwise.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"authserver/internal/engine"
	"authserver/internal/registry"
	"authserver/internal/store"
	"authserver/internal/token"
	"authserver/pkg/config"
	"authserver/pkg/db"
	"authserver/pkg/tenants"
)

// Registry is what the engine and the discovery endpoint read.
type Registry interface {
	registry.ClientRepository
	registry.ScopeRepository
}

type Components struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Tenants  tenants.Provider
	Registry Registry
	Keys     token.KeyStore
	Engine   *engine.Engine
}

// Migrate creates every table the server uses.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"tenants", tenants.EnsureSchema},
		{"registry", registry.EnsureSchema},
		{"tokens", store.EnsureSchema},
		{"keys", token.EnsureSchema},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("schema %s: %w", s.name, err)
		}
	}
	return nil
}

// Wire builds all components. Connection failures are fatal in the db
// helpers; errors returned here are schema or seed problems.
func Wire(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*Components, error) {
	c := &Components{
		Pool:  db.MustConnect(cfg, log),
		Redis: db.MustRedis(cfg, log),
	}

	var (
		refresh  store.RefreshTokenStore
		consents store.ConsentStore
	)
	if c.Pool != nil {
		if err := Migrate(ctx, c.Pool); err != nil {
			return nil, err
		}
		if err := tenants.SeedFromEnv(ctx, c.Pool, os.Getenv("TENANT_SEED_JSON")); err != nil {
			log.Warnw("tenant seed", "err", err)
		}
		c.Tenants = tenants.NewPostgresProvider(c.Pool, log)
		pg := registry.NewPostgres(c.Pool, log)
		if cfg.RegistryFile != "" {
			seed, err := registry.LoadFile(cfg.RegistryFile)
			if err != nil {
				return nil, err
			}
			if err := pg.Import(ctx, seed); err != nil {
				return nil, fmt.Errorf("registry import: %w", err)
			}
			log.Infow("registry imported", "file", cfg.RegistryFile)
		}
		c.Registry = pg
		c.Keys = token.NewPostgresKeyStore(c.Pool, log, cfg.SigningKeySize)
		refresh = store.NewPostgresRefreshTokens(c.Pool)
		consents = store.NewPostgresConsents(c.Pool)
	} else {
		c.Tenants = tenants.NewMemoryProviderFromEnv(log)
		mem := registry.NewMemory()
		if cfg.RegistryFile != "" {
			seed, err := registry.LoadFile(cfg.RegistryFile)
			if err != nil {
				return nil, err
			}
			if mem, err = registry.NewMemoryFromSeed(seed); err != nil {
				return nil, fmt.Errorf("registry seed: %w", err)
			}
		} else {
			log.Warnw("CLIENT_REGISTRY_FILE not set, no clients are registered")
		}
		c.Registry = mem
		c.Keys = token.NewMemoryKeyStore(cfg.SigningKeySize)
		refresh = store.NewMemoryRefreshTokens()
		consents = store.NewMemoryConsents()
	}

	var kv store.Ephemeral = store.NewMemoryKV()
	if c.Redis != nil {
		kv = store.NewRedisKV(c.Redis, "auth:")
	}

	c.Engine = engine.New(engine.Config{
		SessionTTL:          cfg.SessionTTL,
		CodeTTL:             cfg.CodeTTL,
		AccessTokenTTL:      cfg.AccessTokenTTL,
		RefreshTokenTTL:     cfg.RefreshTokenTTL,
		RotateRefreshTokens: cfg.RotateRefreshTokens,
		LoginURL:            cfg.LoginURL,
		ConsentURL:          cfg.ConsentURL,
		ErrorURL:            cfg.ErrorURL,
	}, engine.Deps{
		Clients:       c.Registry,
		Scopes:        c.Registry,
		Sessions:      store.NewSessionStore(kv),
		Codes:         store.NewCodeStore(kv),
		RefreshTokens: refresh,
		Consents:      consents,
		Issuer:        token.NewIssuer(c.Keys, cfg.Issuer),
		Log:           log,
	})
	return c, nil
}

func (c *Components) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
