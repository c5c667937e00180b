package tenants

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("tenant not found")

type Provider interface {
	// Resolve tenant from incoming host.
	ResolveTenantByHost(ctx context.Context, host string) (Tenant, error)
	// Resolve tenant from the X-Tenant-ID header value.
	ResolveTenantByID(ctx context.Context, id string) (Tenant, error)
}

type seedEntry struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Host        string `json:"host"`
	OAuthIssuer string `json:"oauth_issuer"`
	LoginURL    string `json:"login_url"`
	ConsentURL  string `json:"consent_url"`
	ErrorURL    string `json:"error_url"`
}

func (e seedEntry) tenant() Tenant {
	return Tenant{
		ID: e.ID, Slug: e.Slug, Host: e.Host, OAuthIssuer: e.OAuthIssuer,
		LoginURL: e.LoginURL, ConsentURL: e.ConsentURL, ErrorURL: e.ErrorURL,
	}
}
