// Package httpapi maps the authorization engine onto HTTP. Every route
// expects middleware.WithTenant to have run.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"authserver/internal/engine"
	"authserver/internal/registry"
	"authserver/pkg/config"
	"authserver/pkg/middleware"
	"authserver/pkg/openapi"
)

const serviceName = "auth-service"

// Server holds the HTTP handlers. Keep it to shared deps; per-request state
// lives in the request context.
type Server struct {
	cfg    config.Config
	log    *zap.SugaredLogger
	eng    *engine.Engine
	scopes registry.ScopeRepository
	docs   *openapi.Registry
}

func New(cfg config.Config, log *zap.SugaredLogger, eng *engine.Engine, scopes registry.ScopeRepository) *Server {
	return &Server{cfg: cfg, log: log, eng: eng, scopes: scopes, docs: openapi.NewRegistry()}
}

// Routes mounts the protocol endpoints on r.
func (s *Server) Routes(r chi.Router) {
	s.route(r, http.MethodGet, "/authorize", s.authorize, "Start an authorization code flow", "oauth2")
	s.route(r, http.MethodGet, "/login", s.loginInfo, "Describe a pending login", "challenges")
	s.route(r, http.MethodPost, "/login/accept", s.loginAccept, "Accept a login with a refresh-token proof", "challenges")
	s.route(r, http.MethodGet, "/consent", s.consentInfo, "Describe a pending consent", "challenges")
	s.route(r, http.MethodPost, "/consent/accept", s.consentAccept, "Record consent and issue a code", "challenges")
	s.route(r, http.MethodPost, "/token", s.token, "Token endpoint", "oauth2")
	s.route(r, http.MethodPost, "/revoke", s.revoke, "Revoke a refresh token", "oauth2")
	s.route(r, http.MethodPost, "/sessions", s.createSession, "Mint a sign-in refresh token", "sessions")
	s.route(r, http.MethodGet, "/jwks", s.jwks, "Tenant signing keys", "keys")
	s.route(r, http.MethodGet, "/.well-known/jwks.json", s.jwks, "Tenant signing keys", "keys")
	s.route(r, http.MethodPost, "/rsa-keys", s.rsaKeys, "Generate an RSA key pair", "keys")
	s.route(r, http.MethodGet, "/.well-known/openid-configuration", s.discovery, "OpenID Provider metadata", "discovery")

	r.With(middleware.BearerAuth(s.eng.Issuer()), middleware.RequireScope(registry.ScopeOpenID)).
		Get("/userinfo", s.userinfo)
	s.docs.Register(openapi.Operation{
		Method: http.MethodGet, Path: "/userinfo", Summary: "Claims about the token subject",
		Tags: []string{"oidc"}, Scopes: []string{registry.ScopeOpenID},
		Responses: map[string]any{"200": map[string]any{"description": "ok"}},
	})

	r.Get("/.well-known/openapi.json", s.docs.ServeHandler(serviceName, "1.0.0", s.openAPIFlows))
}

func (s *Server) route(r chi.Router, method, path string, h http.HandlerFunc, summary, tag string) {
	r.Method(method, path, h)
	s.docs.Register(openapi.Operation{
		Method: method, Path: path, Summary: summary, Tags: []string{tag},
		Responses: map[string]any{"default": map[string]any{"description": "OAuth2 error"}},
	})
}

func (s *Server) openAPIFlows(r *http.Request) openapi.Flows {
	t := middleware.TenantFrom(r.Context())
	base := s.eng.Issuer().IssuerURL(t)
	f := openapi.Flows{AuthorizationURL: base + "/authorize", TokenURL: base + "/token", Scopes: map[string]string{}}
	if list, err := s.scopes.ListScopes(r.Context(), t.ID); err == nil {
		for _, sc := range list {
			f.Scopes[sc.Name] = sc.Description
		}
	}
	f.Scopes[registry.ScopeOpenID] = "OpenID Connect sign-in"
	return f
}
