package engine

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"authserver/internal/metrics"
	"authserver/internal/registry"
	"authserver/internal/store"
	"authserver/pkg/tenants"
)

type ConsentClient struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name,omitempty"`
}

type ConsentScope struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Claims      []string `json:"claims,omitempty"`
}

// ConsentInfo is what the consent UI needs to render a pending consent.
type ConsentInfo struct {
	Client          ConsentClient  `json:"client"`
	Subject         string         `json:"subject"`
	RequestedScopes []string       `json:"requestedScopes"`
	ConsentedScopes []string       `json:"consentedScopes"`
	Scopes          []ConsentScope `json:"scopes"`
}

type ConsentAcceptRequest struct {
	ConsentChallenge string   `json:"consentChallenge"`
	ConsentedScopes  []string `json:"consentedScopes"`
	RefreshToken     string   `json:"refreshToken"`
}

func subjectMismatch() *OAuthError {
	return newError(http.StatusUnauthorized, ErrCodeSubjectMismatch, "Refresh token does not match session user")
}

// GetConsent describes a pending consent without consuming it.
func (e *Engine) GetConsent(ctx context.Context, t tenants.Tenant, challenge, refreshToken string) (ConsentInfo, error) {
	if challenge == "" {
		return ConsentInfo{}, invalidRequest("consentChallenge is required")
	}
	if refreshToken == "" {
		return ConsentInfo{}, invalidRequest("refreshToken is required")
	}
	sess, err := e.consentSession(ctx, t, challenge, refreshToken)
	if err != nil {
		return ConsentInfo{}, err
	}
	client, err := e.deps.Clients.GetClient(ctx, t.ID, sess.ClientID)
	if err != nil {
		if errors.Is(err, registry.ErrClientNotFound) {
			return ConsentInfo{}, invalidChallenge()
		}
		return ConsentInfo{}, serverError(err)
	}
	prior, err := e.deps.Consents.Get(ctx, t.ID, client.ClientID, sess.Subject)
	if err != nil {
		return ConsentInfo{}, serverError(err)
	}
	info := ConsentInfo{
		Client:          ConsentClient{ClientID: client.ClientID, Name: client.Name},
		Subject:         sess.Subject,
		RequestedScopes: sess.RequestedScopes,
		ConsentedScopes: intersect(sess.RequestedScopes, prior.ConsentedScopes),
	}
	defs, err := e.deps.Scopes.ListScopes(ctx, t.ID)
	if err != nil {
		return ConsentInfo{}, serverError(err)
	}
	for _, name := range sess.RequestedScopes {
		cs := ConsentScope{Name: name}
		for _, d := range defs {
			if d.Name == name {
				cs.Description, cs.Claims = d.Description, d.Claims
			}
		}
		info.Scopes = append(info.Scopes, cs)
	}
	return info, nil
}

// AcceptConsent records the user's decision and issues the authorization
// code. The consent challenge is consumed atomically; a replay, even one
// racing the first request, gets invalid_challenge.
func (e *Engine) AcceptConsent(ctx context.Context, t tenants.Tenant, req ConsentAcceptRequest) (string, error) {
	loc, err := e.acceptConsent(ctx, t, req)
	if err != nil {
		e.challengeRejected("consent", err)
	}
	return loc, err
}

func (e *Engine) acceptConsent(ctx context.Context, t tenants.Tenant, req ConsentAcceptRequest) (string, error) {
	if req.ConsentChallenge == "" {
		return "", invalidRequest("consentChallenge is required")
	}
	if req.RefreshToken == "" {
		return "", invalidRequest("refreshToken is required")
	}
	if len(req.ConsentedScopes) == 0 {
		return "", invalidRequest("Atleast openid scope has to be consented")
	}
	sess, err := e.consentSession(ctx, t, req.ConsentChallenge, req.RefreshToken)
	if err != nil {
		return "", err
	}
	accepted := intersect(dedupe(req.ConsentedScopes), sess.RequestedScopes)
	if !slices.Contains(accepted, registry.ScopeOpenID) {
		return "", invalidRequest("Atleast openid scope has to be consented")
	}

	sess, err = e.deps.Sessions.TakeConsent(ctx, t.ID, req.ConsentChallenge)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", invalidChallenge()
		}
		return "", serverError(err)
	}
	next, err := Transition(sess.Status, EventConsentAccepted)
	if err != nil {
		return "", invalidChallenge()
	}
	sess.Status = next

	rec, err := e.deps.Consents.Grant(ctx, t.ID, sess.ClientID, sess.Subject, accepted)
	if err != nil {
		return "", serverError(err)
	}
	metrics.Challenge("consent", "accepted")
	return e.finalize(ctx, t, sess, intersect(sess.RequestedScopes, union(rec.ConsentedScopes, accepted)))
}

// consentSession loads a pending consent and checks the refresh-token proof
// against its bound subject.
func (e *Engine) consentSession(ctx context.Context, t tenants.Tenant, challenge, refreshToken string) (store.AuthorizationSession, error) {
	sess, err := e.deps.Sessions.GetConsent(ctx, t.ID, challenge)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return sess, invalidChallenge()
		}
		return sess, serverError(err)
	}
	if sess.Status != store.StateConsentPending {
		return sess, invalidChallenge()
	}
	rt, err := e.validateRefreshProof(ctx, t, refreshToken)
	if err != nil {
		return sess, err
	}
	if rt.Subject != sess.Subject {
		return sess, subjectMismatch()
	}
	return sess, nil
}
