package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AuthorizationCode is redeemable once, by ClientID, with RedirectURI.
type AuthorizationCode struct {
	TenantID        string    `json:"tenant_id"`
	ClientID        string    `json:"client_id"`
	Code            string    `json:"-"`
	Subject         string    `json:"subject"`
	RedirectURI     string    `json:"redirect_uri"`
	ConsentedScopes []string  `json:"consented_scopes"`
	PKCE            *PKCE     `json:"pkce,omitempty"`
	Nonce           string    `json:"nonce,omitempty"`
	AMR             []string  `json:"amr,omitempty"`
	AuthTime        time.Time `json:"auth_time,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// CodeStore keeps codes under CODE_<tenant>_<code>.
type CodeStore struct {
	kv Ephemeral
}

func NewCodeStore(kv Ephemeral) *CodeStore { return &CodeStore{kv: kv} }

func (s *CodeStore) Put(ctx context.Context, c AuthorizationCode) error {
	return putJSON(ctx, s.kv, Key(TypeCode, c.TenantID, c.Code), c, time.Until(c.ExpiresAt))
}

// Take consumes the code. A second Take of the same code returns ErrNotFound.
func (s *CodeStore) Take(ctx context.Context, tenantID, code string) (AuthorizationCode, error) {
	var c AuthorizationCode
	if code == "" {
		return c, ErrNotFound
	}
	key := Key(TypeCode, tenantID, code)
	b, err := s.kv.Take(ctx, key)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("decode code: %w", err)
	}
	if c.TenantID != tenantID {
		// Colliding key from another tenant; leave the code redeemable there.
		if ttl := time.Until(c.ExpiresAt); ttl > 0 {
			_ = s.kv.Put(ctx, key, b, ttl)
		}
		return AuthorizationCode{}, ErrNotFound
	}
	if time.Now().After(c.ExpiresAt) {
		return AuthorizationCode{}, ErrNotFound
	}
	c.Code = code
	return c, nil
}
