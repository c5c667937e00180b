package engine

import (
	"context"

	"authserver/internal/store"
	"authserver/pkg/tenants"
)

// finalize is the single place codes are minted, for both the skip-consent
// and explicit-consent paths. The caller has already consumed the session.
func (e *Engine) finalize(ctx context.Context, t tenants.Tenant, sess store.AuthorizationSession, scopes []string) (string, error) {
	code, err := randomToken(32)
	if err != nil {
		return "", serverError(err)
	}
	amr := sess.AMR
	if len(amr) == 0 {
		amr = []string{defaultAMR}
	}
	ac := store.AuthorizationCode{
		TenantID:        t.ID,
		ClientID:        sess.ClientID,
		Code:            code,
		Subject:         sess.Subject,
		RedirectURI:     sess.RedirectURI,
		ConsentedScopes: scopes,
		PKCE:            sess.PKCE,
		Nonce:           sess.Nonce,
		AMR:             amr,
		AuthTime:        sess.AuthTime,
		ExpiresAt:       e.now().Add(e.cfg.CodeTTL),
	}
	if err := e.deps.Codes.Put(ctx, ac); err != nil {
		return "", serverError(err)
	}
	e.log.Debugw("authorization code issued", "tenant", t.ID, "client_id", sess.ClientID, "scopes", scopes)
	return withQueryOrError(sess.RedirectURI, map[string]string{"code": code, "state": sess.State})
}
