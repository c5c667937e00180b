package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SessionState names a step of the authorize → login → consent → code flow.
type SessionState string

const (
	StateCreated        SessionState = "CREATED"
	StateLoginPending   SessionState = "LOGIN_PENDING"
	StateConsentPending SessionState = "CONSENT_PENDING"
	StateFinalized      SessionState = "FINALIZED"
)

type PKCE struct {
	Challenge string `json:"challenge"`
	Method    string `json:"method"`
}

// AuthorizationSession is one in-flight user authorization.
type AuthorizationSession struct {
	TenantID         string       `json:"tenant_id"`
	Status           SessionState `json:"status"`
	LoginChallenge   string       `json:"login_challenge"`
	ConsentChallenge string       `json:"consent_challenge,omitempty"`
	ClientID         string       `json:"client_id"`
	RequestedScopes  []string     `json:"requested_scopes"`
	RedirectURI      string       `json:"redirect_uri"`
	State            string       `json:"state,omitempty"`
	Nonce            string       `json:"nonce,omitempty"`
	Prompt           string       `json:"prompt,omitempty"`
	LoginHint        string       `json:"login_hint,omitempty"`
	PKCE             *PKCE        `json:"pkce,omitempty"`
	Subject          string       `json:"subject,omitempty"`
	AMR              []string     `json:"amr,omitempty"`
	AuthTime         time.Time    `json:"auth_time,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

// SessionStore keeps sessions under LOGIN_<tenant>_<challenge> while waiting
// for login and CONSENT_<tenant>_<challenge> while waiting for consent.
type SessionStore struct {
	kv Ephemeral
}

func NewSessionStore(kv Ephemeral) *SessionStore { return &SessionStore{kv: kv} }

func (s *SessionStore) PutLogin(ctx context.Context, sess AuthorizationSession) error {
	return putJSON(ctx, s.kv, Key(TypeLogin, sess.TenantID, sess.LoginChallenge), sess, time.Until(sess.ExpiresAt))
}

func (s *SessionStore) GetLogin(ctx context.Context, tenantID, challenge string) (AuthorizationSession, error) {
	return s.read(ctx, tenantID, Key(TypeLogin, tenantID, challenge), false)
}

func (s *SessionStore) TakeLogin(ctx context.Context, tenantID, challenge string) (AuthorizationSession, error) {
	return s.read(ctx, tenantID, Key(TypeLogin, tenantID, challenge), true)
}

func (s *SessionStore) PutConsent(ctx context.Context, sess AuthorizationSession) error {
	return putJSON(ctx, s.kv, Key(TypeConsent, sess.TenantID, sess.ConsentChallenge), sess, time.Until(sess.ExpiresAt))
}

func (s *SessionStore) GetConsent(ctx context.Context, tenantID, challenge string) (AuthorizationSession, error) {
	return s.read(ctx, tenantID, Key(TypeConsent, tenantID, challenge), false)
}

func (s *SessionStore) TakeConsent(ctx context.Context, tenantID, challenge string) (AuthorizationSession, error) {
	return s.read(ctx, tenantID, Key(TypeConsent, tenantID, challenge), true)
}

// read only returns sessions owned by tenantID. Tenant ids and challenges may
// both contain '_', so a key alone does not identify the tenant.
func (s *SessionStore) read(ctx context.Context, tenantID, key string, take bool) (AuthorizationSession, error) {
	var sess AuthorizationSession
	if key == "" {
		return sess, ErrNotFound
	}
	var b []byte
	var err error
	if take {
		b, err = s.kv.Take(ctx, key)
	} else {
		b, err = s.kv.Get(ctx, key)
	}
	if err != nil {
		return sess, err
	}
	if err := json.Unmarshal(b, &sess); err != nil {
		return sess, fmt.Errorf("decode session: %w", err)
	}
	if sess.TenantID != tenantID {
		if ttl := time.Until(sess.ExpiresAt); take && ttl > 0 {
			_ = s.kv.Put(ctx, key, b, ttl)
		}
		return AuthorizationSession{}, ErrNotFound
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		return AuthorizationSession{}, ErrNotFound
	}
	return sess, nil
}

func putJSON(ctx context.Context, kv Ephemeral, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNotFound
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Put(ctx, key, b, ttl)
}
