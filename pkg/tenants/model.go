package tenants

// Tenant represents an isolated authorization namespace. Every client, key,
// challenge and token belongs to exactly one tenant.
type Tenant struct {
	ID          string // opaque id sent in X-Tenant-ID (tenant1, acme, uuid...)
	Slug        string // short name (acme)
	Host        string // primary host (auth.acme.com)
	OAuthIssuer string // iss for tokens; falls back to global OIDC_ISSUER
	LoginURL    string // login UI; falls back to global LOGIN_URL
	ConsentURL  string // consent UI; falls back to global CONSENT_URL
	ErrorURL    string // generic client-error page for authorize failures that must not redirect to the client
}
