// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"authserver/pkg/tenants"
)

// TokenVerifier validates a raw access token for a tenant.
type TokenVerifier interface {
	Verify(ctx context.Context, tenant tenants.Tenant, raw string) (jwt.Token, error)
}

type ctxTokenKey struct{}

// BearerAuth validates the bearer access token against the current tenant's
// keys and populates token + scopes in context. Must run after WithTenant.
func BearerAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])
			tenant := TenantFrom(r.Context())
			jt, err := v.Verify(r.Context(), tenant, raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			// tenant ID claim enforcement (tid)
			if tid, ok := jt.Get("tid"); ok {
				if ts, _ := tid.(string); ts != tenant.ID {
					http.Error(w, "tenant_mismatch", http.StatusForbidden)
					return
				}
			}
			var scopes []string
			if sc, ok := jt.Get("scope"); ok {
				if s, _ := sc.(string); s != "" {
					scopes = strings.Fields(s)
				}
			}
			ctx := WithScopes(r.Context(), scopes)
			ctx = context.WithValue(ctx, ctxTokenKey{}, jt)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ActorSub(ctx context.Context) string {
	if jt := TokenFrom(ctx); jt != nil {
		return jt.Subject()
	}
	return ""
}

// TokenFrom returns the verified token stored by BearerAuth.
func TokenFrom(ctx context.Context) jwt.Token {
	if t, ok := ctx.Value(ctxTokenKey{}).(jwt.Token); ok {
		return t
	}
	return nil
}
