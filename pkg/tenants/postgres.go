// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresProvider constructs a PostgreSQL-backed tenant provider.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates the tenants table. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id text PRIMARY KEY,
  slug text UNIQUE,
  host text UNIQUE,
  oauth_issuer text
);
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS login_url text;
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS consent_url text;
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS error_url text;
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS created_at timestamptz NOT NULL DEFAULT NOW();
`)
	return err
}

// SeedFromEnv upserts tenants from TENANT_SEED_JSON:
// [{"id":"tenant1","slug":"t1","host":"auth.t1.test","oauth_issuer":"...","login_url":"...","consent_url":"...","error_url":"..."}]
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	var entries []seedEntry
	if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
		return err
	}
	for _, e := range entries {
		_, err := dbPool.Exec(ctx, `INSERT INTO tenants(id,slug,host,oauth_issuer,login_url,consent_url,error_url)
		  VALUES ($1,NULLIF($2,''),NULLIF($3,''),$4,$5,$6,$7)
		  ON CONFLICT (id) DO UPDATE SET slug=EXCLUDED.slug,host=EXCLUDED.host,oauth_issuer=EXCLUDED.oauth_issuer,
		    login_url=EXCLUDED.login_url,consent_url=EXCLUDED.consent_url,error_url=EXCLUDED.error_url`,
			e.ID, e.Slug, e.Host, e.OAuthIssuer, e.LoginURL, e.ConsentURL, e.ErrorURL)
		if err != nil {
			return fmt.Errorf("seed tenant %s: %w", e.ID, err)
		}
	}
	return nil
}

const tenantColumns = `id,COALESCE(slug,''),COALESCE(host,''),COALESCE(oauth_issuer,''),COALESCE(login_url,''),COALESCE(consent_url,''),COALESCE(error_url,'')`

// ResolveTenantByHost fetches a tenant using its host value.
func (p *pgProvider) ResolveTenantByHost(ctx context.Context, host string) (Tenant, error) {
	return p.scan(p.dbPool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE host=$1`, host))
}

// ResolveTenantByID fetches a tenant by id.
func (p *pgProvider) ResolveTenantByID(ctx context.Context, id string) (Tenant, error) {
	return p.scan(p.dbPool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id=$1`, id))
}

func (p *pgProvider) scan(row pgx.Row) (Tenant, error) {
	var t Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.Host, &t.OAuthIssuer, &t.LoginURL, &t.ConsentURL, &t.ErrorURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		p.log.Errorw("tenant lookup", "err", err)
		return Tenant{}, err
	}
	return t, nil
}
