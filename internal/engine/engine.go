// Package engine implements the authorization server's flows: authorize,
// login accept, consent, code issuance, the token endpoint grants and
// revocation. It is transport-agnostic; internal/httpapi maps it onto HTTP.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"authserver/internal/metrics"
	"authserver/internal/registry"
	"authserver/internal/store"
	"authserver/internal/token"
	"authserver/pkg/tenants"
)

const defaultAMR = "pwd"

type Config struct {
	SessionTTL          time.Duration
	CodeTTL             time.Duration
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	RotateRefreshTokens bool

	// Fallbacks when the tenant does not override them.
	LoginURL   string
	ConsentURL string
	ErrorURL   string
}

// Deps are the collaborators of the engine. All of them are required.
type Deps struct {
	Clients       registry.ClientRepository
	Scopes        registry.ScopeRepository
	Sessions      *store.SessionStore
	Codes         *store.CodeStore
	RefreshTokens store.RefreshTokenStore
	Consents      store.ConsentStore
	Issuer        *token.Issuer
	Log           *zap.SugaredLogger
}

type Engine struct {
	cfg    Config
	deps   Deps
	log    *zap.SugaredLogger
	now    func() time.Time
	grants map[string]grant
}

func New(cfg Config, deps Deps) *Engine {
	e := &Engine{cfg: cfg, deps: deps, log: deps.Log, now: time.Now}
	e.grants = grantTable()
	return e
}

// Issuer exposes the token issuer for JWKS, discovery and bearer checks.
func (e *Engine) Issuer() *token.Issuer { return e.deps.Issuer }

func (e *Engine) loginURL(t tenants.Tenant) string   { return firstNonEmpty(t.LoginURL, e.cfg.LoginURL) }
func (e *Engine) consentURL(t tenants.Tenant) string { return firstNonEmpty(t.ConsentURL, e.cfg.ConsentURL) }
func (e *Engine) errorURL(t tenants.Tenant) string   { return firstNonEmpty(t.ErrorURL, e.cfg.ErrorURL) }

// randomToken returns n random bytes, base64url encoded.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// withQuery appends params to base, keeping any query base already has.
func withQuery(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// validateRefreshProof checks a refresh token presented as proof of an
// existing sign-in. Any client's token is accepted.
func (e *Engine) validateRefreshProof(ctx context.Context, t tenants.Tenant, raw string) (store.RefreshToken, error) {
	rt, err := e.deps.RefreshTokens.Get(ctx, t.ID, store.HashToken(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rt, newError(http.StatusUnauthorized, ErrCodeInvalidRefreshToken, "Invalid refresh token")
		}
		return rt, serverError(err)
	}
	if !rt.Active {
		return rt, newError(http.StatusUnauthorized, ErrCodeRefreshTokenInactive, "Refresh token is inactive")
	}
	if rt.Expired(e.now()) {
		return rt, newError(http.StatusUnauthorized, ErrCodeRefreshTokenExpired, "Refresh token has expired")
	}
	return rt, nil
}

func (e *Engine) challengeRejected(kind string, err error) {
	var oe *OAuthError
	if errors.As(err, &oe) && oe.Status < 500 {
		metrics.Challenge(kind, "rejected")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
