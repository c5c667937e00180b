package engine

import (
	"context"

	"authserver/internal/metrics"
	"authserver/internal/registry"
	"authserver/internal/store"
	"authserver/pkg/tenants"
)

// SignInRequest is sent by a trusted sign-in service (passwordless, MFA)
// after it has authenticated Subject.
type SignInRequest struct {
	ClientID     string `json:"-"`
	ClientSecret string `json:"-"`
	BasicAuth    bool   `json:"-"`

	Subject    string   `json:"subject"`
	Scopes     []string `json:"scopes"`
	AMR        []string `json:"amr"`
	DeviceName string   `json:"deviceName"`
	IP         string   `json:"-"`
}

// IssueSessionToken mints the refresh token that later serves as the login
// proof, plus an access token for the calling client.
func (e *Engine) IssueSessionToken(ctx context.Context, t tenants.Tenant, req SignInRequest) (TokenResponse, error) {
	if req.Subject == "" {
		return TokenResponse{}, invalidRequest("subject is required")
	}
	client, err := e.authenticateClient(ctx, t, req.ClientID, req.ClientSecret, req.BasicAuth)
	if err != nil {
		return TokenResponse{}, err
	}
	if client.Public() || !client.SupportsGrant(registry.GrantSession) {
		return TokenResponse{}, unauthorizedClient("client is not allowed to create sessions")
	}
	scopes := dedupe(req.Scopes)
	if len(scopes) == 0 {
		scopes = []string{registry.ScopeOpenID}
	}
	for _, s := range scopes {
		if !client.AllowsScope(s) {
			return TokenResponse{}, invalidScope("requested scope is not allowed for this client")
		}
	}
	amr := dedupe(req.AMR)
	if len(amr) == 0 {
		amr = []string{defaultAMR}
	}

	resp, err := e.mintTokens(ctx, t, mintParams{
		clientID:  client.ClientID,
		subject:   req.Subject,
		grantType: registry.GrantSession,
		scopes:    scopes,
		amr:       amr,
		authTime:  e.now(),
	})
	if err != nil {
		return TokenResponse{}, err
	}
	resp.RefreshToken, err = e.createRefreshToken(ctx, t, store.RefreshToken{
		ClientID:      client.ClientID,
		Subject:       req.Subject,
		GrantedScopes: scopes,
		AuthMethods:   amr,
		DeviceName:    req.DeviceName,
		IP:            req.IP,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	metrics.TokenIssued(registry.GrantSession)
	e.log.Infow("session token issued", "tenant", t.ID, "client_id", client.ClientID, "amr", amr)
	return resp, nil
}
