package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"authserver/internal/engine"
	"authserver/internal/registry"
	"authserver/internal/store"
	"authserver/internal/token"
	"authserver/pkg/config"
	"authserver/pkg/logger"
	"authserver/pkg/middleware"
	"authserver/pkg/tenants"
)

const callback = "https://example.com/callback"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := registry.NewMemory()
	hash := func(s string) string {
		h, err := registry.HashSecret(s)
		require.NoError(t, err)
		return h
	}
	reg.PutScope(registry.Scope{TenantID: "tenant1", Name: "email", Description: "Email address", Claims: []string{"email", "email_verified"}})
	reg.PutScope(registry.Scope{TenantID: "tenant1", Name: "profile", Claims: []string{"name"}})
	reg.PutClient(registry.Client{TenantID: "tenant1", ClientID: "c1", Name: "Client One", ClientSecretHash: hash("secret1"),
		RedirectURIs: []string{callback}, GrantTypes: []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"}, AllowedScopes: []string{"profile", "email"}})
	reg.PutClient(registry.Client{TenantID: "tenant1", ClientID: "svc", ClientSecretHash: hash("svc-secret"),
		GrantTypes: []string{"client_credentials"}, AllowedScopes: []string{"read"}})
	reg.PutClient(registry.Client{TenantID: "tenant1", ClientID: "signin", ClientSecretHash: hash("signin-secret"),
		GrantTypes: []string{registry.GrantSession}, AllowedScopes: []string{"profile", "email"}})

	cfg := config.Config{
		Issuer:            "https://auth.example.com",
		LoginURL:          "https://ui.example.com/login",
		ConsentURL:        "https://ui.example.com/consent",
		RefreshCookieName: "refresh_token",
	}
	kv := store.NewMemoryKV()
	eng := engine.New(engine.Config{
		SessionTTL:      time.Minute,
		CodeTTL:         time.Minute,
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: time.Hour,
		LoginURL:        cfg.LoginURL,
		ConsentURL:      cfg.ConsentURL,
	}, engine.Deps{
		Clients:       reg,
		Scopes:        reg,
		Sessions:      store.NewSessionStore(kv),
		Codes:         store.NewCodeStore(kv),
		RefreshTokens: store.NewMemoryRefreshTokens(),
		Consents:      store.NewMemoryConsents(),
		Issuer:        token.NewIssuer(token.NewMemoryKeyStore(2048), cfg.Issuer),
		Log:           logger.Nop(),
	})

	r := chi.NewRouter()
	r.Use(middleware.WithTenant(tenants.NewMemoryProvider(logger.Nop(),
		tenants.Tenant{ID: "tenant1", Host: "auth.tenant1.test"},
		tenants.Tenant{ID: "tenant2"},
	)))
	New(cfg, logger.Nop(), eng, reg).Routes(r)
	return r
}

type call struct {
	method  string
	target  string
	tenant  string
	body    string
	form    url.Values
	headers map[string]string
	basic   [2]string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch {
	case c.form != nil:
		req = httptest.NewRequest(c.method, c.target, strings.NewReader(c.form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	case c.body != "":
		req = httptest.NewRequest(c.method, c.target, strings.NewReader(c.body))
		req.Header.Set("Content-Type", "application/json")
	default:
		req = httptest.NewRequest(c.method, c.target, nil)
	}
	if c.tenant == "" {
		c.tenant = "tenant1"
	}
	req.Header.Set(middleware.TenantHeader, c.tenant)
	if c.basic[0] != "" {
		req.SetBasicAuth(c.basic[0], c.basic[1])
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func location(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func authorizeURL(params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return "/authorize?" + q.Encode()
}

func signIn(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, call{method: http.MethodPost, target: "/sessions",
		body: `{"subject":"user-1","amr":["otp"]}`, basic: [2]string{"signin", "signin-secret"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[engine.TokenResponse](t, rec)
	require.NotEmpty(t, resp.RefreshToken)
	return resp.RefreshToken
}

func TestAuthorizeRedirectsToLoginUI(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	rec := do(t, h, call{method: http.MethodGet, target: authorizeURL(map[string]string{
		"client_id": "c1", "redirect_uri": callback, "scope": "openid profile email", "response_type": "code",
	})})
	u := location(t, rec)
	assert.Equal(t, "ui.example.com", u.Host)
	assert.Equal(t, "/login", u.Path)
	assert.GreaterOrEqual(t, len(u.Query().Get("login_challenge")), 32)
}

func TestAuthorizeWithoutOpenIDRedirectsWithError(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	rec := do(t, h, call{method: http.MethodGet, target: authorizeURL(map[string]string{
		"client_id": "c1", "redirect_uri": callback, "scope": "profile email", "response_type": "code", "state": "abc",
	})})
	u := location(t, rec)
	assert.Equal(t, callback, u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "invalid_scope", u.Query().Get("error"))
	assert.Equal(t, "abc", u.Query().Get("state"))
	assert.NotEmpty(t, u.Query().Get("error_description"))
}

func TestAuthorizeUnregisteredRedirectIsNotFollowed(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	rec := do(t, h, call{method: http.MethodGet, target: authorizeURL(map[string]string{
		"client_id": "c1", "redirect_uri": "https://evil.example.com/", "scope": "openid", "response_type": "code",
	})})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestTenantResolution(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	rec := do(t, h, call{method: http.MethodGet, target: "/jwks", tenant: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	req.Host = "auth.tenant1.test:8080"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCodeFlowOverHTTP(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	rt := signIn(t, h)
	verifier := oauth2.GenerateVerifier()

	u := location(t, do(t, h, call{method: http.MethodGet, target: authorizeURL(map[string]string{
		"client_id": "c1", "redirect_uri": callback, "scope": "openid email", "response_type": "code",
		"state": "s-1", "nonce": "n-1", "login_hint": "user@example.com",
		"code_challenge": oauth2.S256ChallengeFromVerifier(verifier), "code_challenge_method": "S256",
	})}))
	loginChallenge := u.Query().Get("login_challenge")

	rec := do(t, h, call{method: http.MethodGet, target: "/login?login_challenge=" + url.QueryEscape(loginChallenge)})
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[engine.LoginInfo](t, rec)
	assert.Equal(t, "c1", info.ClientID)
	assert.Equal(t, "Client One", info.ClientName)
	assert.Equal(t, "user@example.com", info.LoginHint)
	assert.Equal(t, "s-1", info.State)

	body, _ := json.Marshal(engine.LoginAcceptRequest{LoginChallenge: loginChallenge, RefreshToken: rt})
	u = location(t, do(t, h, call{method: http.MethodPost, target: "/login/accept", body: string(body)}))
	assert.Equal(t, "/consent", u.Path)
	consentChallenge := u.Query().Get("consent_challenge")

	rec = do(t, h, call{method: http.MethodGet, target: "/consent?consent_challenge=" + url.QueryEscape(consentChallenge),
		headers: map[string]string{"Cookie": "refresh_token=" + rt}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cinfo := decode[engine.ConsentInfo](t, rec)
	assert.Equal(t, "user-1", cinfo.Subject)
	assert.Equal(t, []string{"openid", "email"}, cinfo.RequestedScopes)

	rec = do(t, h, call{method: http.MethodGet, target: "/consent?consent_challenge=" + url.QueryEscape(consentChallenge)})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ = json.Marshal(engine.ConsentAcceptRequest{ConsentChallenge: consentChallenge, ConsentedScopes: []string{"openid", "email"}})
	u = location(t, do(t, h, call{method: http.MethodPost, target: "/consent/accept", body: string(body),
		headers: map[string]string{"X-Refresh-Token": rt}}))
	assert.Equal(t, "s-1", u.Query().Get("state"))
	code := u.Query().Get("code")
	require.NotEmpty(t, code)

	rec = do(t, h, call{method: http.MethodPost, target: "/token", basic: [2]string{"c1", "secret1"},
		headers: map[string]string{"User-Agent": "test-agent"},
		form: url.Values{"grant_type": {"authorization_code"}, "code": {code}, "redirect_uri": {callback}, "code_verifier": {verifier}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	tok := decode[engine.TokenResponse](t, rec)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, "openid email", tok.Scope)
	assert.NotEmpty(t, tok.IDToken)
	assert.NotEmpty(t, tok.RefreshToken)

	rec = do(t, h, call{method: http.MethodGet, target: "/userinfo", headers: map[string]string{"Authorization": "Bearer " + tok.AccessToken}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ui := decode[map[string]string](t, rec)
	assert.Equal(t, "user-1", ui["sub"])
	assert.Equal(t, "tenant1", ui["tid"])
	assert.Equal(t, "openid email", ui["scope"])

	// Same token presented to another tenant.
	rec = do(t, h, call{method: http.MethodGet, target: "/userinfo", tenant: "tenant2", headers: map[string]string{"Authorization": "Bearer " + tok.AccessToken}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, call{method: http.MethodPost, target: "/token", form: url.Values{
		"grant_type": {"authorization_code"}, "code": {code}, "redirect_uri": {callback}, "code_verifier": {verifier},
		"client_id": {"c1"}, "client_secret": {"secret1"},
	}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", decode[map[string]string](t, rec)["error"])
}

func TestLoginAcceptErrorsAreJSON(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	rec := do(t, h, call{method: http.MethodPost, target: "/login/accept", body: `{"loginChallenge":"nope","refreshToken":"x"}`})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "invalid_challenge", body["error"])
	assert.Equal(t, "Invalid challenge", body["error_description"])

	rec = do(t, h, call{method: http.MethodPost, target: "/login/accept", body: `{"loginChallenge":"nope"}`})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[map[string]string](t, rec)["error"])

	rec = do(t, h, call{method: http.MethodPost, target: "/login/accept", body: `{not json`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, call{method: http.MethodGet, target: "/login?login_challenge=nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenEndpointErrors(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)

	rec := do(t, h, call{method: http.MethodPost, target: "/token", form: url.Values{"client_id": {"c1"}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[map[string]string](t, rec)["error"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = do(t, h, call{method: http.MethodPost, target: "/token", form: url.Values{"grant_type": {"password"}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_grant_type", decode[map[string]string](t, rec)["error"])

	rec = do(t, h, call{method: http.MethodPost, target: "/token", basic: [2]string{"svc", "wrong"},
		form: url.Values{"grant_type": {"client_credentials"}}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="https://auth.example.com"`, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "invalid_client", decode[map[string]string](t, rec)["error"])

	rec = do(t, h, call{method: http.MethodPost, target: "/token",
		form: url.Values{"grant_type": {"client_credentials"}, "client_id": {"svc"}, "client_secret": {"wrong"}}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))

	rec = do(t, h, call{method: http.MethodPost, target: "/token", basic: [2]string{"c1", "secret1"},
		form: url.Values{"grant_type": {"client_credentials"}}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized_client", decode[map[string]string](t, rec)["error"])

	rec = do(t, h, call{method: http.MethodPost, target: "/token", basic: [2]string{"svc", "svc-secret"},
		form: url.Values{"grant_type": {"client_credentials"}, "scope": {"read"}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cc := decode[engine.TokenResponse](t, rec)
	assert.Equal(t, "read", cc.Scope)

	// client_credentials tokens carry no openid scope.
	rec = do(t, h, call{method: http.MethodGet, target: "/userinfo", headers: map[string]string{"Authorization": "Bearer " + cc.AccessToken}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, call{method: http.MethodGet, target: "/userinfo"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	rt := signIn(t, h)

	rec := do(t, h, call{method: http.MethodPost, target: "/revoke", form: url.Values{"token": {rt}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, call{method: http.MethodPost, target: "/revoke", form: url.Values{"token": {rt}},
		headers: map[string]string{"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte("no-colon"))}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, call{method: http.MethodPost, target: "/revoke", basic: [2]string{"signin", "signin-secret"}, form: url.Values{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, call{method: http.MethodPost, target: "/revoke", basic: [2]string{"signin", "bad"}, form: url.Values{"token": {rt}}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, tokenValue := range []string{"unknown", rt, rt} {
		rec = do(t, h, call{method: http.MethodPost, target: "/revoke", basic: [2]string{"signin", "signin-secret"}, form: url.Values{"token": {tokenValue}}})
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	ch := location(t, do(t, h, call{method: http.MethodGet, target: authorizeURL(map[string]string{
		"client_id": "c1", "redirect_uri": callback, "scope": "openid", "response_type": "code",
	})})).Query().Get("login_challenge")
	rec = do(t, h, call{method: http.MethodPost, target: "/login/accept",
		form: url.Values{"login_challenge": {ch}}, headers: map[string]string{"Cookie": "refresh_token=" + rt}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "refresh_token_inactive", decode[map[string]string](t, rec)["error"])
}

func TestJWKSAndKeyGeneration(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	for _, path := range []string{"/jwks", "/.well-known/jwks.json"} {
		rec := do(t, h, call{method: http.MethodGet, target: path})
		require.Equal(t, http.StatusOK, rec.Code)
		set := decode[struct {
			Keys []map[string]any `json:"keys"`
		}](t, rec)
		require.Len(t, set.Keys, 1)
		assert.Equal(t, "RSA", set.Keys[0]["kty"])
		assert.Equal(t, "sig", set.Keys[0]["use"])
		assert.Equal(t, "AQAB", set.Keys[0]["e"])
		assert.NotEmpty(t, set.Keys[0]["kid"])
	}

	gen := func(body string) *httptest.ResponseRecorder {
		return do(t, h, call{method: http.MethodPost, target: "/rsa-keys", body: body})
	}
	a := decode[map[string]any](t, gen(`{"keySize":2048,"format":"PEM"}`))
	b := decode[map[string]any](t, gen(`{"keySize":2048,"format":"PEM"}`))
	assert.NotEqual(t, a["kid"], b["kid"])
	assert.Contains(t, a["privateKey"], "BEGIN PRIVATE KEY")
	assert.Contains(t, a["publicKey"], "BEGIN PUBLIC KEY")

	j := gen(`{"keySize":2048,"format":"JWKS"}`)
	require.Equal(t, http.StatusOK, j.Code)
	jb := decode[map[string]any](t, j)
	assert.Contains(t, jb["publicKey"], "keys")

	assert.Equal(t, http.StatusBadRequest, gen(`{"keySize":1024,"format":"PEM"}`).Code)
	assert.Equal(t, http.StatusBadRequest, gen(`{"keySize":2048,"format":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, gen(`{"keySize":2048,"format":"DER"}`).Code)
}

func TestDiscoveryAndOpenAPI(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)
	rec := do(t, h, call{method: http.MethodGet, target: "/.well-known/openid-configuration"})
	require.Equal(t, http.StatusOK, rec.Code)
	md := decode[providerMetadata](t, rec)
	assert.Equal(t, "https://auth.example.com", md.Issuer)
	assert.Equal(t, "https://auth.example.com/token", md.TokenEndpoint)
	assert.ElementsMatch(t, []string{"openid", "email", "profile"}, md.ScopesSupported)
	assert.Equal(t, []string{"authorization_code", "client_credentials", "refresh_token"}, md.GrantTypesSupported)
	assert.Contains(t, md.ClaimsSupported, "email_verified")

	rec = do(t, h, call{method: http.MethodGet, target: "/.well-known/openapi.json"})
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/token")
	assert.Contains(t, paths, "/userinfo")
}
