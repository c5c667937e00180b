// Package registry resolves OAuth clients and scopes for a tenant. The
// authorization engine only reads from it.
package registry

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrScopeNotFound  = errors.New("scope not found")
)

// Grant types a client may be registered for.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	// GrantSession lets a first-party sign-in service mint refresh tokens
	// through POST /sessions.
	GrantSession = "session"
)

// ScopeOpenID is implicitly known in every tenant.
const ScopeOpenID = "openid"

type Client struct {
	TenantID         string   `json:"tenant_id" yaml:"tenant_id"`
	ClientID         string   `json:"client_id" yaml:"client_id"`
	Name             string   `json:"name" yaml:"name"`
	ClientSecretHash string   `json:"client_secret_hash" yaml:"client_secret_hash"`
	RedirectURIs     []string `json:"redirect_uris" yaml:"redirect_uris"`
	GrantTypes       []string `json:"grant_types" yaml:"grant_types"`
	ResponseTypes    []string `json:"response_types" yaml:"response_types"`
	AllowedScopes    []string `json:"allowed_scopes" yaml:"allowed_scopes"`
	SkipConsent      bool     `json:"skip_consent" yaml:"skip_consent"`
}

// Public clients have no secret and authenticate by client_id alone.
func (c Client) Public() bool { return c.ClientSecretHash == "" }

// VerifySecret checks a presented secret. Public clients only accept an empty
// secret.
func (c Client) VerifySecret(secret string) bool {
	if c.Public() {
		return secret == ""
	}
	if secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecretHash), []byte(secret)) == nil
}

// HasRedirectURI requires an exact string match.
func (c Client) HasRedirectURI(uri string) bool { return slices.Contains(c.RedirectURIs, uri) }

func (c Client) SupportsGrant(grant string) bool { return slices.Contains(c.GrantTypes, grant) }

func (c Client) SupportsResponseType(rt string) bool { return slices.Contains(c.ResponseTypes, rt) }

func (c Client) AllowsScope(scope string) bool {
	return scope == ScopeOpenID || slices.Contains(c.AllowedScopes, scope)
}

type Scope struct {
	TenantID    string   `json:"tenant_id" yaml:"tenant_id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Claims      []string `json:"claims" yaml:"claims"`
}

type ClientRepository interface {
	GetClient(ctx context.Context, tenantID, clientID string) (Client, error)
}

type ScopeRepository interface {
	GetScopeClaims(ctx context.Context, tenantID, scope string) ([]string, error)
	ListScopes(ctx context.Context, tenantID string) ([]Scope, error)
}

// HashSecret produces the stored form of a client secret.
func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
