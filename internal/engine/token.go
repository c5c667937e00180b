package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"authserver/internal/metrics"
	"authserver/internal/pkce"
	"authserver/internal/registry"
	"authserver/internal/store"
	"authserver/internal/token"
	"authserver/pkg/tenants"
)

type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string

	ClientID     string
	ClientSecret string
	// BasicAuth is true when the credentials came from an Authorization:
	// Basic header.
	BasicAuth bool

	DeviceName string
	IP         string
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// grant is one entry of the token endpoint's dispatch table.
type grant struct {
	// validate checks grant-specific fields before any store access.
	validate func(req TokenRequest) error
	exchange func(e *Engine, ctx context.Context, t tenants.Tenant, client registry.Client, req TokenRequest) (TokenResponse, error)
}

func grantTable() map[string]grant {
	return map[string]grant{
		registry.GrantAuthorizationCode: {validate: validateAuthorizationCode, exchange: (*Engine).exchangeAuthorizationCode},
		registry.GrantRefreshToken:      {validate: validateRefreshToken, exchange: (*Engine).exchangeRefreshToken},
		registry.GrantClientCredentials: {validate: func(TokenRequest) error { return nil }, exchange: (*Engine).exchangeClientCredentials},
	}
}

// SupportedGrants lists grant types the token endpoint dispatches.
func (e *Engine) SupportedGrants() []string {
	out := make([]string, 0, len(e.grants))
	for g := range e.grants {
		out = append(out, g)
	}
	slices.Sort(out)
	return out
}

// Token runs the token endpoint: grant_type, grant fields, client
// authentication, grant permission, then the grant itself.
func (e *Engine) Token(ctx context.Context, t tenants.Tenant, req TokenRequest) (TokenResponse, error) {
	if req.GrantType == "" {
		return TokenResponse{}, invalidRequest("grant_type is required")
	}
	g, ok := e.grants[req.GrantType]
	if !ok {
		return TokenResponse{}, newError(http.StatusBadRequest, ErrCodeUnsupportedGrantType, "grant_type not supported")
	}
	if err := g.validate(req); err != nil {
		return TokenResponse{}, err
	}
	client, err := e.authenticateClient(ctx, t, req.ClientID, req.ClientSecret, req.BasicAuth)
	if err != nil {
		return TokenResponse{}, err
	}
	if !client.SupportsGrant(req.GrantType) {
		return TokenResponse{}, unauthorizedClient("client is not allowed to use " + req.GrantType)
	}
	resp, err := g.exchange(e, ctx, t, client, req)
	if err != nil {
		return TokenResponse{}, err
	}
	metrics.TokenIssued(req.GrantType)
	return resp, nil
}

func validateAuthorizationCode(req TokenRequest) error {
	if req.Code == "" {
		return invalidRequest("code is required")
	}
	if req.RedirectURI == "" {
		return invalidRequest("redirect_uri is required")
	}
	return nil
}

func validateRefreshToken(req TokenRequest) error {
	if req.RefreshToken == "" {
		return invalidRequest("refresh_token is required")
	}
	return nil
}

// authenticateClient checks client credentials. Public clients pass with an
// empty secret.
func (e *Engine) authenticateClient(ctx context.Context, t tenants.Tenant, clientID, secret string, basic bool) (registry.Client, error) {
	fail := func(desc string) error {
		oe := newError(http.StatusUnauthorized, ErrCodeInvalidClient, desc)
		if basic {
			oe.Authenticate = fmt.Sprintf(`Basic realm="%s"`, e.deps.Issuer.IssuerURL(t))
		}
		return oe
	}
	if clientID == "" {
		return registry.Client{}, fail("client authentication required")
	}
	client, err := e.deps.Clients.GetClient(ctx, t.ID, clientID)
	if err != nil {
		if errors.Is(err, registry.ErrClientNotFound) {
			return registry.Client{}, fail("client authentication failed")
		}
		return registry.Client{}, serverError(err)
	}
	if !client.VerifySecret(secret) {
		return registry.Client{}, fail("client authentication failed")
	}
	return client, nil
}

func (e *Engine) exchangeAuthorizationCode(ctx context.Context, t tenants.Tenant, client registry.Client, req TokenRequest) (TokenResponse, error) {
	// The code is consumed before any check so that a failed attempt also
	// burns it.
	code, err := e.deps.Codes.Take(ctx, t.ID, req.Code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenResponse{}, invalidGrant("authorization code invalid")
		}
		return TokenResponse{}, serverError(err)
	}
	if code.ClientID != client.ClientID {
		e.log.Warnw("authorization code presented by another client", "tenant", t.ID, "client_id", client.ClientID)
		return TokenResponse{}, invalidGrant("authorization code invalid")
	}
	if code.RedirectURI != req.RedirectURI {
		return TokenResponse{}, invalidGrant("redirect_uri invalid")
	}
	if code.PKCE != nil {
		if req.CodeVerifier == "" {
			return TokenResponse{}, invalidRequest("code_verifier required")
		}
		if !pkce.Verify(code.PKCE.Method, code.PKCE.Challenge, req.CodeVerifier) {
			return TokenResponse{}, invalidGrant("code_verifier invalid")
		}
	}

	resp, err := e.mintTokens(ctx, t, mintParams{
		clientID:  client.ClientID,
		subject:   code.Subject,
		grantType: registry.GrantAuthorizationCode,
		scopes:    code.ConsentedScopes,
		amr:       code.AMR,
		nonce:     code.Nonce,
		authTime:  code.AuthTime,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	resp.RefreshToken, err = e.createRefreshToken(ctx, t, store.RefreshToken{
		ClientID:      client.ClientID,
		Subject:       code.Subject,
		GrantedScopes: code.ConsentedScopes,
		AuthMethods:   code.AMR,
		DeviceName:    req.DeviceName,
		IP:            req.IP,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	return resp, nil
}

func (e *Engine) exchangeRefreshToken(ctx context.Context, t tenants.Tenant, client registry.Client, req TokenRequest) (TokenResponse, error) {
	hash := store.HashToken(req.RefreshToken)
	rt, err := e.deps.RefreshTokens.Get(ctx, t.ID, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenResponse{}, invalidGrant("refresh token invalid")
		}
		return TokenResponse{}, serverError(err)
	}
	if rt.ClientID != client.ClientID {
		return TokenResponse{}, invalidGrant("refresh token invalid")
	}
	if !rt.Active {
		return TokenResponse{}, invalidGrant("refresh token inactive")
	}
	if rt.Expired(e.now()) {
		return TokenResponse{}, invalidGrant("refresh token expired")
	}

	scopes := rt.GrantedScopes
	if req.Scope != "" {
		requested := parseScopes(req.Scope)
		if !isSubset(requested, rt.GrantedScopes) {
			return TokenResponse{}, invalidScope("requested scope exceeds the granted scope")
		}
		scopes = requested
	}

	var rotated string
	if e.cfg.RotateRefreshTokens {
		if rotated, err = randomToken(32); err != nil {
			return TokenResponse{}, serverError(err)
		}
		if err := e.deps.RefreshTokens.Rotate(ctx, t.ID, hash, store.HashToken(rotated), e.now().Add(e.cfg.RefreshTokenTTL)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return TokenResponse{}, invalidGrant("refresh token invalid")
			}
			return TokenResponse{}, serverError(err)
		}
	}

	resp, err := e.mintTokens(ctx, t, mintParams{
		clientID:  client.ClientID,
		subject:   rt.Subject,
		grantType: registry.GrantRefreshToken,
		scopes:    scopes,
		amr:       rt.AuthMethods,
		authTime:  rt.CreatedAt,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	resp.RefreshToken = rotated
	return resp, nil
}

func (e *Engine) exchangeClientCredentials(ctx context.Context, t tenants.Tenant, client registry.Client, req TokenRequest) (TokenResponse, error) {
	if client.Public() {
		return TokenResponse{}, unauthorizedClient("public clients cannot use client_credentials")
	}
	scopes := client.AllowedScopes
	if req.Scope != "" {
		requested := parseScopes(req.Scope)
		if !isSubset(requested, client.AllowedScopes) {
			return TokenResponse{}, invalidScope("requested scope is not allowed for this client")
		}
		scopes = requested
	}
	return e.mintTokens(ctx, t, mintParams{
		clientID:  client.ClientID,
		subject:   client.ClientID,
		grantType: registry.GrantClientCredentials,
		scopes:    scopes,
		noIDToken: true,
	})
}

type mintParams struct {
	clientID  string
	subject   string
	grantType string
	scopes    []string
	amr       []string
	nonce     string
	authTime  time.Time
	noIDToken bool
}

// mintTokens signs the access token and, when openid is in scope, the ID
// token.
func (e *Engine) mintTokens(ctx context.Context, t tenants.Tenant, p mintParams) (TokenResponse, error) {
	at, err := e.deps.Issuer.SignAccessToken(ctx, token.AccessClaims{
		Tenant:    t,
		Subject:   p.subject,
		ClientID:  p.clientID,
		GrantType: p.grantType,
		Scopes:    p.scopes,
		AMR:       p.amr,
		TTL:       e.cfg.AccessTokenTTL,
	})
	if err != nil {
		return TokenResponse{}, serverError(err)
	}
	resp := TokenResponse{
		AccessToken: at,
		TokenType:   "Bearer",
		ExpiresIn:   int64(e.cfg.AccessTokenTTL.Seconds()),
		Scope:       strings.Join(p.scopes, " "),
	}
	if p.noIDToken || !slices.Contains(p.scopes, registry.ScopeOpenID) {
		return resp, nil
	}
	resp.IDToken, err = e.deps.Issuer.SignIDToken(ctx, token.IDClaims{
		Tenant:      t,
		Subject:     p.subject,
		ClientID:    p.clientID,
		Nonce:       p.nonce,
		AMR:         p.amr,
		AuthTime:    p.authTime,
		AccessToken: at,
		TTL:         e.cfg.AccessTokenTTL,
	})
	if err != nil {
		return TokenResponse{}, serverError(err)
	}
	return resp, nil
}

// createRefreshToken stores a new token and returns its opaque value. Only
// the hash is persisted.
func (e *Engine) createRefreshToken(ctx context.Context, t tenants.Tenant, rt store.RefreshToken) (string, error) {
	value, err := randomToken(32)
	if err != nil {
		return "", serverError(err)
	}
	now := e.now()
	rt.ID = uuid.NewString()
	rt.TenantID = t.ID
	rt.TokenHash = store.HashToken(value)
	rt.Active = true
	rt.CreatedAt = now
	rt.ExpiresAt = now.Add(e.cfg.RefreshTokenTTL)
	if err := e.deps.RefreshTokens.Create(ctx, rt); err != nil {
		return "", serverError(err)
	}
	return value, nil
}
