package engine

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"authserver/internal/metrics"
	"authserver/internal/pkce"
	"authserver/internal/registry"
	"authserver/internal/store"
	"authserver/pkg/tenants"
)

type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	ResponseType        string
	State               string
	Nonce               string
	Prompt              string
	LoginHint           string
	CodeChallenge       string
	CodeChallengeMethod string
}

var validPrompts = map[string]bool{"login": true, "consent": true, "none": true, "select_account": true}

// Authorize validates an authorization request, stores a login session and
// returns the login UI location carrying the login_challenge.
func (e *Engine) Authorize(ctx context.Context, t tenants.Tenant, req AuthorizeRequest) (string, error) {
	if err := validateAuthorizeParams(req); err != nil {
		return "", err
	}

	client, err := e.deps.Clients.GetClient(ctx, t.ID, req.ClientID)
	if err != nil {
		if errors.Is(err, registry.ErrClientNotFound) {
			return "", e.untrustedClientError(t, req, "unknown client_id")
		}
		return "", serverError(err)
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return "", e.untrustedClientError(t, req, "redirect_uri is not registered for this client")
	}
	if req.ResponseType != "code" || !client.SupportsResponseType(req.ResponseType) {
		return "", newError(http.StatusBadRequest, ErrCodeUnsupportedResponseType, "response_type not allowed for this client")
	}

	requested := parseScopes(req.Scope)
	if !slices.Contains(requested, registry.ScopeOpenID) {
		return "", redirectError(req.RedirectURI, req.State, ErrCodeInvalidScope, "openid scope is required")
	}
	scopes, err := e.knownScopes(ctx, t, client, requested)
	if err != nil {
		return "", serverError(err)
	}
	if client.Public() && req.CodeChallenge == "" {
		return "", redirectError(req.RedirectURI, req.State, ErrCodeInvalidRequest, "code_challenge required for public clients")
	}

	challenge, err := randomToken(32)
	if err != nil {
		return "", serverError(err)
	}
	status, err := Transition(store.StateCreated, EventAuthorize)
	if err != nil {
		return "", serverError(err)
	}
	now := e.now()
	sess := store.AuthorizationSession{
		TenantID:        t.ID,
		Status:          status,
		LoginChallenge:  challenge,
		ClientID:        client.ClientID,
		RequestedScopes: scopes,
		RedirectURI:     req.RedirectURI,
		State:           req.State,
		Nonce:           req.Nonce,
		Prompt:          req.Prompt,
		LoginHint:       req.LoginHint,
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.cfg.SessionTTL),
	}
	if req.CodeChallenge != "" {
		sess.PKCE = &store.PKCE{Challenge: req.CodeChallenge, Method: req.CodeChallengeMethod}
	}
	if err := e.deps.Sessions.PutLogin(ctx, sess); err != nil {
		return "", serverError(err)
	}
	metrics.Challenge("login", "created")
	e.log.Debugw("authorization session created", "tenant", t.ID, "client_id", client.ClientID, "scopes", scopes)

	loc, err := withQuery(e.loginURL(t), map[string]string{"login_challenge": challenge})
	if err != nil {
		return "", serverError(err)
	}
	return loc, nil
}

func validateAuthorizeParams(req AuthorizeRequest) error {
	switch {
	case req.ClientID == "":
		return invalidRequest("client_id is required")
	case req.RedirectURI == "":
		return invalidRequest("redirect_uri is required")
	case req.Scope == "":
		return invalidRequest("scope is required")
	case req.ResponseType == "":
		return invalidRequest("response_type is required")
	}
	if req.Prompt != "" && !validPrompts[req.Prompt] {
		return invalidRequest("prompt must be one of login, consent, none, select_account")
	}
	if (req.CodeChallenge == "") != (req.CodeChallengeMethod == "") {
		return invalidRequest("code_challenge and code_challenge_method must be provided together")
	}
	if req.CodeChallengeMethod != "" && !pkce.ValidMethod(req.CodeChallengeMethod) {
		return invalidRequest("code_challenge_method must be plain or S256")
	}
	return nil
}

// untrustedClientError never targets the request's redirect_uri: it goes to
// the tenant's error page when one is registered, else it is a plain 400.
func (e *Engine) untrustedClientError(t tenants.Tenant, req AuthorizeRequest, desc string) error {
	if target := e.errorURL(t); target != "" {
		return redirectError(target, req.State, ErrCodeInvalidRequest, desc)
	}
	return invalidRequest(desc)
}

// knownScopes drops scopes the tenant does not define or the client may not
// request. openid is always kept.
func (e *Engine) knownScopes(ctx context.Context, t tenants.Tenant, client registry.Client, requested []string) ([]string, error) {
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if s == registry.ScopeOpenID {
			out = append(out, s)
			continue
		}
		if !client.AllowsScope(s) {
			continue
		}
		if _, err := e.deps.Scopes.GetScopeClaims(ctx, t.ID, s); err != nil {
			if errors.Is(err, registry.ErrScopeNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
