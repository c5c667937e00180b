package engine

import (
	"context"

	"authserver/internal/metrics"
	"authserver/internal/store"
	"authserver/pkg/tenants"
)

type RevokeRequest struct {
	ClientID     string
	ClientSecret string
	Token        string
}

// Revoke implements RFC 7009 for refresh tokens. Unknown, already revoked
// and foreign tokens are accepted silently; only the owning client's active
// token is flipped.
func (e *Engine) Revoke(ctx context.Context, t tenants.Tenant, req RevokeRequest) error {
	if req.Token == "" {
		return invalidRequest("token is required")
	}
	client, err := e.authenticateClient(ctx, t, req.ClientID, req.ClientSecret, true)
	if err != nil {
		return err
	}
	flipped, err := e.deps.RefreshTokens.Revoke(ctx, t.ID, client.ClientID, store.HashToken(req.Token))
	if err != nil {
		return serverError(err)
	}
	if flipped {
		metrics.RefreshRevoked()
		e.log.Infow("refresh token revoked", "tenant", t.ID, "client_id", client.ClientID)
	}
	return nil
}
