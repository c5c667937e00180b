package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"authserver/pkg/db"
)

// EnsureSchema creates refresh-token and consent tables. Safe to call
// repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS oauth_refresh_tokens (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  client_id text NOT NULL,
  subject text NOT NULL,
  token_hash text NOT NULL,
  granted_scopes text[] NOT NULL DEFAULT '{}',
  active boolean NOT NULL DEFAULT true,
  device_name text NOT NULL DEFAULT '',
  ip text NOT NULL DEFAULT '',
  auth_methods text[] NOT NULL DEFAULT '{}',
  created_at timestamptz NOT NULL DEFAULT NOW(),
  expires_at timestamptz NOT NULL,
  rotated_at timestamptz,
  UNIQUE (tenant_id, token_hash)
);
CREATE INDEX IF NOT EXISTS oauth_refresh_tokens_owner_idx ON oauth_refresh_tokens(tenant_id, client_id, subject);
CREATE TABLE IF NOT EXISTS oauth_consents (
  tenant_id text NOT NULL,
  client_id text NOT NULL,
  subject text NOT NULL,
  scopes text[] NOT NULL DEFAULT '{}',
  updated_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (tenant_id, client_id, subject)
);
`)
	return err
}

// PostgresRefreshTokens is the durable RefreshTokenStore.
type PostgresRefreshTokens struct {
	pool *pgxpool.Pool
}

func NewPostgresRefreshTokens(pool *pgxpool.Pool) *PostgresRefreshTokens {
	return &PostgresRefreshTokens{pool: pool}
}

func (p *PostgresRefreshTokens) Create(ctx context.Context, t RefreshToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return db.WithTenantTx(ctx, p.pool, t.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO oauth_refresh_tokens(id,tenant_id,client_id,subject,token_hash,granted_scopes,active,device_name,ip,auth_methods,created_at,expires_at)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			t.ID, t.TenantID, t.ClientID, t.Subject, t.TokenHash, nonNilStrings(t.GrantedScopes), t.Active,
			t.DeviceName, t.IP, nonNilStrings(t.AuthMethods), t.CreatedAt, t.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert refresh token: %w", err)
		}
		return nil
	})
}

func (p *PostgresRefreshTokens) Get(ctx context.Context, tenantID, tokenHash string) (RefreshToken, error) {
	row := p.pool.QueryRow(ctx, `SELECT id,tenant_id,client_id,subject,token_hash,granted_scopes,active,device_name,ip,auth_methods,created_at,expires_at,rotated_at
	  FROM oauth_refresh_tokens WHERE tenant_id=$1 AND token_hash=$2`, tenantID, tokenHash)
	var t RefreshToken
	var id uuid.UUID
	err := row.Scan(&id, &t.TenantID, &t.ClientID, &t.Subject, &t.TokenHash, &t.GrantedScopes, &t.Active,
		&t.DeviceName, &t.IP, &t.AuthMethods, &t.CreatedAt, &t.ExpiresAt, &t.RotatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, ErrNotFound
		}
		return RefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}
	t.ID = id.String()
	return t, nil
}

func (p *PostgresRefreshTokens) Revoke(ctx context.Context, tenantID, clientID, tokenHash string) (bool, error) {
	var flipped bool
	err := db.WithTenantTx(ctx, p.pool, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE oauth_refresh_tokens SET active=false
		  WHERE tenant_id=$1 AND token_hash=$2 AND client_id=$3 AND active`, tenantID, tokenHash, clientID)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		flipped = tag.RowsAffected() > 0
		return nil
	})
	return flipped, err
}

func (p *PostgresRefreshTokens) Rotate(ctx context.Context, tenantID, oldHash, newHash string, expiresAt time.Time) error {
	return db.WithTenantTx(ctx, p.pool, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE oauth_refresh_tokens SET token_hash=$3, expires_at=$4, rotated_at=NOW()
		  WHERE tenant_id=$1 AND token_hash=$2 AND active`, tenantID, oldHash, newHash, expiresAt)
		if err != nil {
			return fmt.Errorf("rotate refresh token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// PostgresConsents is the durable ConsentStore.
type PostgresConsents struct {
	pool *pgxpool.Pool
}

func NewPostgresConsents(pool *pgxpool.Pool) *PostgresConsents {
	return &PostgresConsents{pool: pool}
}

func (p *PostgresConsents) Get(ctx context.Context, tenantID, clientID, subject string) (ConsentRecord, error) {
	rec := ConsentRecord{TenantID: tenantID, ClientID: clientID, Subject: subject}
	err := p.pool.QueryRow(ctx, `SELECT scopes, updated_at FROM oauth_consents WHERE tenant_id=$1 AND client_id=$2 AND subject=$3`,
		tenantID, clientID, subject).Scan(&rec.ConsentedScopes, &rec.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("get consent: %w", err)
	}
	return rec, nil
}

func (p *PostgresConsents) Grant(ctx context.Context, tenantID, clientID, subject string, scopes []string) (ConsentRecord, error) {
	rec := ConsentRecord{TenantID: tenantID, ClientID: clientID, Subject: subject}
	err := db.WithTenantTx(ctx, p.pool, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO oauth_consents(tenant_id,client_id,subject,scopes,updated_at)
		  VALUES ($1,$2,$3,ARRAY(SELECT DISTINCT s FROM unnest($4::text[]) AS s ORDER BY s),NOW())
		  ON CONFLICT (tenant_id,client_id,subject) DO UPDATE SET
		    scopes = ARRAY(SELECT DISTINCT s FROM unnest(oauth_consents.scopes || EXCLUDED.scopes) AS s ORDER BY s),
		    updated_at = NOW()
		  RETURNING scopes, updated_at`, tenantID, clientID, subject, nonNilStrings(scopes)).Scan(&rec.ConsentedScopes, &rec.UpdatedAt)
	})
	if err != nil {
		return rec, fmt.Errorf("grant consent: %w", err)
	}
	return rec, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
