package token

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"authserver/pkg/db"
)

// PostgresKeyStore persists tenant keys as PKCS#8 PEM.
type PostgresKeyStore struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
	size int

	mu     sync.Mutex
	parsed map[string]*rsa.PrivateKey // kid -> key
}

func NewPostgresKeyStore(pool *pgxpool.Pool, log *zap.SugaredLogger, size int) *PostgresKeyStore {
	return &PostgresKeyStore{pool: pool, log: log, size: size, parsed: map[string]*rsa.PrivateKey{}}
}

// EnsureSchema creates the signing key table. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS oauth_signing_keys (
  tenant_id text NOT NULL,
  kid text NOT NULL,
  private_pem text NOT NULL,
  active boolean NOT NULL DEFAULT true,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (tenant_id, kid)
);
CREATE INDEX IF NOT EXISTS oauth_signing_keys_active_idx ON oauth_signing_keys(tenant_id, active, created_at DESC);
`)
	return err
}

func (p *PostgresKeyStore) ActiveKey(ctx context.Context, tenantID string) (SigningKey, error) {
	k, err := p.newestActive(ctx, tenantID)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return SigningKey{}, err
	}
	// First use for this tenant. Concurrent generators may both insert; the
	// newest active key wins and both stay published.
	gen, err := newSigningKey(tenantID, p.size)
	if err != nil {
		return SigningKey{}, err
	}
	if err := p.insert(ctx, gen, false); err != nil {
		return SigningKey{}, err
	}
	p.log.Infow("signing key generated", "tenant", tenantID, "kid", gen.KID)
	return p.newestActive(ctx, tenantID)
}

func (p *PostgresKeyStore) PublicKeys(ctx context.Context, tenantID string) ([]SigningKey, error) {
	if _, err := p.ActiveKey(ctx, tenantID); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `SELECT tenant_id,kid,private_pem,active,created_at FROM oauth_signing_keys
	  WHERE tenant_id=$1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SigningKey
	for rows.Next() {
		k, err := p.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (p *PostgresKeyStore) Rotate(ctx context.Context, tenantID string) (SigningKey, error) {
	k, err := newSigningKey(tenantID, p.size)
	if err != nil {
		return SigningKey{}, err
	}
	if err := p.insert(ctx, k, true); err != nil {
		return SigningKey{}, err
	}
	p.log.Infow("signing key rotated", "tenant", tenantID, "kid", k.KID)
	return k, nil
}

func (p *PostgresKeyStore) newestActive(ctx context.Context, tenantID string) (SigningKey, error) {
	row := p.pool.QueryRow(ctx, `SELECT tenant_id,kid,private_pem,active,created_at FROM oauth_signing_keys
	  WHERE tenant_id=$1 AND active ORDER BY created_at DESC LIMIT 1`, tenantID)
	return p.scan(row)
}

func (p *PostgresKeyStore) insert(ctx context.Context, k SigningKey, retireOthers bool) error {
	pemStr, err := EncodePrivatePEM(k.Private)
	if err != nil {
		return err
	}
	return db.WithTenantTx(ctx, p.pool, k.TenantID, func(tx pgx.Tx) error {
		if retireOthers {
			if _, err := tx.Exec(ctx, `UPDATE oauth_signing_keys SET active=false WHERE tenant_id=$1`, k.TenantID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO oauth_signing_keys(tenant_id,kid,private_pem,active,created_at) VALUES ($1,$2,$3,true,$4)
		  ON CONFLICT (tenant_id,kid) DO NOTHING`, k.TenantID, k.KID, pemStr, k.CreatedAt)
		return err
	})
}

func (p *PostgresKeyStore) scan(row pgx.Row) (SigningKey, error) {
	var k SigningKey
	var pemStr string
	if err := row.Scan(&k.TenantID, &k.KID, &pemStr, &k.Active, &k.CreatedAt); err != nil {
		return SigningKey{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if priv, ok := p.parsed[k.KID]; ok {
		k.Private = priv
		return k, nil
	}
	priv, err := DecodePrivatePEM(pemStr)
	if err != nil {
		return SigningKey{}, fmt.Errorf("key %s: %w", k.KID, err)
	}
	p.parsed[k.KID] = priv
	k.Private = priv
	return k, nil
}

// EncodePrivatePEM encodes key as a PKCS#8 "PRIVATE KEY" block.
func EncodePrivatePEM(key *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// EncodePublicPEM encodes key as a PKIX "PUBLIC KEY" block.
func EncodePublicPEM(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// DecodePrivatePEM accepts PKCS#8 and PKCS#1 RSA private keys.
func DecodePrivatePEM(s string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an RSA key")
		}
		return rk, nil
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
