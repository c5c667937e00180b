// pkg/middleware/tenant.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"authserver/pkg/tenants"
)

type ctxTenantKey struct{}

// TenantHeader carries the tenant id on every protocol request.
const TenantHeader = "X-Tenant-ID"

// WithTenant resolves the tenant from X-Tenant-ID, falling back to the request
// host, and stores it in the request context.
func WithTenant(prov tenants.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow health/metrics without tenant context
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			var t tenants.Tenant
			var err error
			if id := strings.TrimSpace(r.Header.Get(TenantHeader)); id != "" {
				t, err = prov.ResolveTenantByID(r.Context(), id)
			} else {
				host := r.Host
				if i := strings.Index(host, ":"); i > 0 {
					host = host[:i]
				}
				t, err = prov.ResolveTenantByHost(r.Context(), host)
			}
			if err != nil {
				if errors.Is(err, tenants.ErrNotFound) {
					http.Error(w, "unknown tenant", http.StatusNotFound)
					return
				}
				http.Error(w, "tenant lookup failed", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), t)))
		})
	}
}

func ContextWithTenant(ctx context.Context, t tenants.Tenant) context.Context {
	return context.WithValue(ctx, ctxTenantKey{}, t)
}

func TenantFrom(ctx context.Context) tenants.Tenant {
	if v := ctx.Value(ctxTenantKey{}); v != nil {
		return v.(tenants.Tenant)
	}
	return tenants.Tenant{}
}
