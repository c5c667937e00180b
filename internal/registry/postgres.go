package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Postgres implements ClientRepository and ScopeRepository.
type Postgres struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

func NewPostgres(pool *pgxpool.Pool, log *zap.SugaredLogger) *Postgres {
	return &Postgres{pool: pool, log: log}
}

// EnsureSchema creates the registry tables. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS oauth_clients (
  tenant_id text NOT NULL,
  client_id text NOT NULL,
  name text NOT NULL DEFAULT '',
  client_secret_hash text NOT NULL DEFAULT '',
  redirect_uris text[] NOT NULL DEFAULT '{}',
  grant_types text[] NOT NULL DEFAULT '{}',
  response_types text[] NOT NULL DEFAULT '{code}',
  allowed_scopes text[] NOT NULL DEFAULT '{}',
  skip_consent boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (tenant_id, client_id)
);
CREATE TABLE IF NOT EXISTS oauth_scopes (
  tenant_id text NOT NULL,
  name text NOT NULL,
  description text NOT NULL DEFAULT '',
  claims text[] NOT NULL DEFAULT '{}',
  PRIMARY KEY (tenant_id, name)
);
`)
	return err
}

func (p *Postgres) GetClient(ctx context.Context, tenantID, clientID string) (Client, error) {
	row := p.pool.QueryRow(ctx, `SELECT tenant_id,client_id,name,client_secret_hash,redirect_uris,grant_types,response_types,allowed_scopes,skip_consent
	  FROM oauth_clients WHERE tenant_id=$1 AND client_id=$2`, tenantID, clientID)
	var c Client
	if err := row.Scan(&c.TenantID, &c.ClientID, &c.Name, &c.ClientSecretHash, &c.RedirectURIs, &c.GrantTypes, &c.ResponseTypes, &c.AllowedScopes, &c.SkipConsent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (p *Postgres) GetScopeClaims(ctx context.Context, tenantID, scope string) ([]string, error) {
	var claims []string
	err := p.pool.QueryRow(ctx, `SELECT claims FROM oauth_scopes WHERE tenant_id=$1 AND name=$2`, tenantID, scope).Scan(&claims)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScopeNotFound
		}
		return nil, fmt.Errorf("get scope: %w", err)
	}
	return claims, nil
}

func (p *Postgres) ListScopes(ctx context.Context, tenantID string) ([]Scope, error) {
	rows, err := p.pool.Query(ctx, `SELECT tenant_id,name,description,claims FROM oauth_scopes WHERE tenant_id=$1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Scope
	for rows.Next() {
		var s Scope
		if err := rows.Scan(&s.TenantID, &s.Name, &s.Description, &s.Claims); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertClient is used by seeding and authctl; the engine never writes clients.
func (p *Postgres) UpsertClient(ctx context.Context, c Client) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO oauth_clients(tenant_id,client_id,name,client_secret_hash,redirect_uris,grant_types,response_types,allowed_scopes,skip_consent)
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	  ON CONFLICT (tenant_id,client_id) DO UPDATE SET name=EXCLUDED.name,client_secret_hash=EXCLUDED.client_secret_hash,
	    redirect_uris=EXCLUDED.redirect_uris,grant_types=EXCLUDED.grant_types,response_types=EXCLUDED.response_types,
	    allowed_scopes=EXCLUDED.allowed_scopes,skip_consent=EXCLUDED.skip_consent`,
		c.TenantID, c.ClientID, c.Name, c.ClientSecretHash, nonNil(c.RedirectURIs), nonNil(c.GrantTypes), nonNil(c.ResponseTypes), nonNil(c.AllowedScopes), c.SkipConsent)
	return err
}

func (p *Postgres) UpsertScope(ctx context.Context, s Scope) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO oauth_scopes(tenant_id,name,description,claims) VALUES ($1,$2,$3,$4)
	  ON CONFLICT (tenant_id,name) DO UPDATE SET description=EXCLUDED.description,claims=EXCLUDED.claims`,
		s.TenantID, s.Name, s.Description, nonNil(s.Claims))
	return err
}

// Import upserts every client and scope of a seed.
func (p *Postgres) Import(ctx context.Context, seed Seed) error {
	clients, scopes, err := seed.Resolve()
	if err != nil {
		return err
	}
	for _, c := range clients {
		if err := p.UpsertClient(ctx, c); err != nil {
			return fmt.Errorf("import client %s/%s: %w", c.TenantID, c.ClientID, err)
		}
	}
	for _, s := range scopes {
		if err := p.UpsertScope(ctx, s); err != nil {
			return fmt.Errorf("import scope %s/%s: %w", s.TenantID, s.Name, err)
		}
	}
	p.log.Infow("registry imported", "clients", len(clients), "scopes", len(scopes))
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
