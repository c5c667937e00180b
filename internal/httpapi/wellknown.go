package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authserver/internal/registry"
	"authserver/internal/token"
	"authserver/pkg/middleware"
)

func (s *Server) jwks(w http.ResponseWriter, r *http.Request) {
	set, err := s.eng.Issuer().JWKS(r.Context(), middleware.TenantFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, "jwks", err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, set, http.StatusOK)
}

type rsaKeyRequest struct {
	KeySize int    `json:"keySize"`
	Format  string `json:"format"`
}

func (s *Server) rsaKeys(w http.ResponseWriter, r *http.Request) {
	var req rsaKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "rsa_keys", badRequest("invalid JSON body"))
		return
	}
	kp, err := token.GenerateKeyPair(req.KeySize, req.Format)
	if err != nil {
		if errors.Is(err, token.ErrInvalidKeySize) || errors.Is(err, token.ErrInvalidFormat) {
			s.fail(w, r, "rsa_keys", badRequest(err.Error()))
			return
		}
		s.fail(w, r, "rsa_keys", err)
		return
	}
	noStore(w)
	writeJSON(w, kp, http.StatusOK)
}

type providerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

func (s *Server) discovery(w http.ResponseWriter, r *http.Request) {
	t := middleware.TenantFrom(r.Context())
	iss := s.eng.Issuer().IssuerURL(t)
	list, err := s.scopes.ListScopes(r.Context(), t.ID)
	if err != nil {
		s.fail(w, r, "discovery", err)
		return
	}
	scopes := []string{registry.ScopeOpenID}
	claims := []string{"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce", "amr", "tid", "at_hash"}
	for _, sc := range list {
		scopes = append(scopes, sc.Name)
		claims = append(claims, sc.Claims...)
	}
	writeJSON(w, providerMetadata{
		Issuer:                            iss,
		AuthorizationEndpoint:             iss + "/authorize",
		TokenEndpoint:                     iss + "/token",
		RevocationEndpoint:                iss + "/revoke",
		UserinfoEndpoint:                  iss + "/userinfo",
		JWKSURI:                           iss + "/.well-known/jwks.json",
		ScopesSupported:                   scopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               s.eng.SupportedGrants(),
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		CodeChallengeMethodsSupported:     []string{"plain", "S256"},
		ClaimsSupported:                   claims,
	}, http.StatusOK)
}

func (s *Server) userinfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"sub":   middleware.ActorSub(r.Context()),
		"tid":   middleware.TenantFrom(r.Context()).ID,
		"scope": strings.Join(middleware.ScopesFrom(r.Context()), " "),
	}, http.StatusOK)
}
