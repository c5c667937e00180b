package engine

import (
	"context"
	"errors"

	"authserver/internal/metrics"
	"authserver/internal/registry"
	"authserver/internal/store"
	"authserver/pkg/tenants"
)

// LoginInfo is what the login UI needs to render a pending login.
type LoginInfo struct {
	ClientID        string   `json:"client_id"`
	ClientName      string   `json:"client_name,omitempty"`
	RequestedScopes []string `json:"requested_scopes"`
	LoginHint       string   `json:"login_hint,omitempty"`
	Prompt          string   `json:"prompt,omitempty"`
	State           string   `json:"state,omitempty"`
	ExpiresAt       int64    `json:"expires_at"`
}

type LoginAcceptRequest struct {
	LoginChallenge string `json:"loginChallenge"`
	RefreshToken   string `json:"refreshToken"`
}

// LoginRequest describes a pending login without consuming it.
func (e *Engine) LoginRequest(ctx context.Context, t tenants.Tenant, challenge string) (LoginInfo, error) {
	if challenge == "" {
		return LoginInfo{}, invalidRequest("login_challenge is required")
	}
	sess, err := e.deps.Sessions.GetLogin(ctx, t.ID, challenge)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginInfo{}, invalidChallenge()
		}
		return LoginInfo{}, serverError(err)
	}
	info := LoginInfo{
		ClientID:        sess.ClientID,
		RequestedScopes: sess.RequestedScopes,
		LoginHint:       sess.LoginHint,
		Prompt:          sess.Prompt,
		State:           sess.State,
		ExpiresAt:       sess.ExpiresAt.Unix(),
	}
	if c, err := e.deps.Clients.GetClient(ctx, t.ID, sess.ClientID); err == nil {
		info.ClientName = c.Name
	}
	return info, nil
}

// AcceptLogin binds the subject of a valid refresh token to the session. It
// either finalizes straight away (skip-consent or nothing new to consent to)
// or hands over to the consent UI.
func (e *Engine) AcceptLogin(ctx context.Context, t tenants.Tenant, req LoginAcceptRequest) (string, error) {
	loc, err := e.acceptLogin(ctx, t, req)
	if err != nil {
		e.challengeRejected("login", err)
	}
	return loc, err
}

func (e *Engine) acceptLogin(ctx context.Context, t tenants.Tenant, req LoginAcceptRequest) (string, error) {
	if req.LoginChallenge == "" {
		return "", invalidRequest("loginChallenge is required")
	}
	if req.RefreshToken == "" {
		return "", invalidRequest("refreshToken is required")
	}
	sess, err := e.deps.Sessions.GetLogin(ctx, t.ID, req.LoginChallenge)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", invalidChallenge()
		}
		return "", serverError(err)
	}
	rt, err := e.validateRefreshProof(ctx, t, req.RefreshToken)
	if err != nil {
		return "", err
	}
	client, err := e.deps.Clients.GetClient(ctx, t.ID, sess.ClientID)
	if err != nil {
		if errors.Is(err, registry.ErrClientNotFound) {
			return "", invalidChallenge()
		}
		return "", serverError(err)
	}
	prior, err := e.deps.Consents.Get(ctx, t.ID, client.ClientID, rt.Subject)
	if err != nil {
		return "", serverError(err)
	}
	missing := minus(minus(sess.RequestedScopes, prior.ConsentedScopes), []string{registry.ScopeOpenID})
	skip := client.SkipConsent || len(missing) == 0

	// Consume the login challenge; a concurrent accept that got here first
	// wins and this one reports an invalid challenge.
	sess, err = e.deps.Sessions.TakeLogin(ctx, t.ID, req.LoginChallenge)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", invalidChallenge()
		}
		return "", serverError(err)
	}
	sess.Subject = rt.Subject
	sess.AMR = rt.AuthMethods
	sess.AuthTime = rt.CreatedAt

	if skip {
		next, err := Transition(sess.Status, EventConsentSkipped)
		if err != nil {
			return "", invalidChallenge()
		}
		sess.Status = next
		metrics.Challenge("login", "accepted")
		return e.finalize(ctx, t, sess, sess.RequestedScopes)
	}

	next, err := Transition(sess.Status, EventLoginAccepted)
	if err != nil {
		return "", invalidChallenge()
	}
	sess.Status = next
	if sess.ConsentChallenge, err = randomToken(32); err != nil {
		return "", serverError(err)
	}
	if err := e.deps.Sessions.PutConsent(ctx, sess); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// session lifetime ran out between lookup and hand-over
			return "", invalidChallenge()
		}
		return "", serverError(err)
	}
	metrics.Challenge("login", "accepted")
	metrics.Challenge("consent", "created")
	return withQueryOrError(e.consentURL(t), map[string]string{"consent_challenge": sess.ConsentChallenge})
}

func withQueryOrError(base string, params map[string]string) (string, error) {
	loc, err := withQuery(base, params)
	if err != nil {
		return "", serverError(err)
	}
	return loc, nil
}
