package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"authserver/pkg/tenants"
)

// Issuer mints RS256 JWTs for a tenant using its active key.
type Issuer struct {
	keys          KeyStore
	defaultIssuer string
	now           func() time.Time
}

func NewIssuer(keys KeyStore, defaultIssuer string) *Issuer {
	return &Issuer{keys: keys, defaultIssuer: strings.TrimRight(defaultIssuer, "/"), now: time.Now}
}

// IssuerURL is the iss value for tokens of tenant t.
func (i *Issuer) IssuerURL(t tenants.Tenant) string {
	if t.OAuthIssuer != "" {
		return strings.TrimRight(t.OAuthIssuer, "/")
	}
	return i.defaultIssuer
}

// AccessClaims describes an access token.
type AccessClaims struct {
	Tenant    tenants.Tenant
	Subject   string
	ClientID  string
	GrantType string
	Scopes    []string
	AMR       []string
	TTL       time.Duration
}

// IDClaims describes an OpenID Connect ID token.
type IDClaims struct {
	Tenant      tenants.Tenant
	Subject     string
	ClientID    string
	Nonce       string
	AMR         []string
	AuthTime    time.Time
	AccessToken string // for at_hash
	TTL         time.Duration
}

func (i *Issuer) SignAccessToken(ctx context.Context, c AccessClaims) (string, error) {
	now := i.now()
	b := jwt.NewBuilder().
		Issuer(i.IssuerURL(c.Tenant)).
		Subject(c.Subject).
		Audience([]string{c.ClientID}).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(c.TTL)).
		JwtID(uuid.NewString()).
		Claim("tid", c.Tenant.ID).
		Claim("client_id", c.ClientID).
		Claim("scope", strings.Join(c.Scopes, " "))
	if c.GrantType != "" {
		b = b.Claim("gty", c.GrantType)
	}
	if len(c.AMR) > 0 {
		b = b.Claim("amr", c.AMR)
	}
	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("build access token: %w", err)
	}
	return i.sign(ctx, c.Tenant.ID, tok)
}

func (i *Issuer) SignIDToken(ctx context.Context, c IDClaims) (string, error) {
	now := i.now()
	b := jwt.NewBuilder().
		Issuer(i.IssuerURL(c.Tenant)).
		Subject(c.Subject).
		Audience([]string{c.ClientID}).
		IssuedAt(now).
		Expiration(now.Add(c.TTL)).
		Claim("tid", c.Tenant.ID).
		Claim("azp", c.ClientID)
	if !c.AuthTime.IsZero() {
		b = b.Claim("auth_time", c.AuthTime.Unix())
	}
	if c.Nonce != "" {
		b = b.Claim("nonce", c.Nonce)
	}
	if len(c.AMR) > 0 {
		b = b.Claim("amr", c.AMR)
	}
	if c.AccessToken != "" {
		b = b.Claim("at_hash", AccessTokenHash(c.AccessToken))
	}
	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("build id token: %w", err)
	}
	return i.sign(ctx, c.Tenant.ID, tok)
}

func (i *Issuer) sign(ctx context.Context, tenantID string, tok jwt.Token) (string, error) {
	key, err := i.keys.ActiveKey(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("active key: %w", err)
	}
	jk, err := toJWK(key.Private, key.KID)
	if err != nil {
		return "", err
	}
	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, key.KID); err != nil {
		return "", err
	}
	if err := hdrs.Set(jws.TypeKey, "JWT"); err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, jk, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return string(signed), nil
}

// JWKS returns the tenant's published public keys.
func (i *Issuer) JWKS(ctx context.Context, tenantID string) (jwk.Set, error) {
	keys, err := i.keys.PublicKeys(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	for _, k := range keys {
		pub, err := toJWK(&k.Private.PublicKey, k.KID)
		if err != nil {
			return nil, err
		}
		if err := set.AddKey(pub); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Verify parses raw and checks signature, issuer and time claims against
// tenant t.
func (i *Issuer) Verify(ctx context.Context, t tenants.Tenant, raw string) (jwt.Token, error) {
	if raw == "" {
		return nil, errors.New("empty token")
	}
	set, err := i.JWKS(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return jwt.Parse([]byte(raw),
		jwt.WithKeySet(set),
		jwt.WithIssuer(i.IssuerURL(t)),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(i.now)),
		jwt.WithAcceptableSkew(30*time.Second),
	)
}

// AccessTokenHash computes the OIDC at_hash for an RS256 access token.
func AccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
