package httpapi

import (
	"net/http"

	"authserver/internal/engine"
	"authserver/pkg/middleware"
)

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, "token", badRequest("invalid form body"))
		return
	}
	f := r.PostForm
	req := engine.TokenRequest{
		GrantType:    f.Get("grant_type"),
		Code:         f.Get("code"),
		RedirectURI:  f.Get("redirect_uri"),
		CodeVerifier: f.Get("code_verifier"),
		RefreshToken: f.Get("refresh_token"),
		Scope:        f.Get("scope"),
		DeviceName:   deviceName(r, f.Get("device_name")),
		IP:           clientIP(r),
	}
	if id, secret, ok := basicCredentials(r); ok {
		req.ClientID, req.ClientSecret, req.BasicAuth = id, secret, true
	} else {
		req.ClientID, req.ClientSecret = f.Get("client_id"), f.Get("client_secret")
	}

	resp, err := s.eng.Token(r.Context(), middleware.TenantFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, "token", err)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := basicCredentials(r)
	if !ok {
		s.fail(w, r, "revoke", badRequest("Authorization: Basic header is required"))
		return
	}
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, "revoke", badRequest("invalid form body"))
		return
	}
	err := s.eng.Revoke(r.Context(), middleware.TenantFrom(r.Context()), engine.RevokeRequest{
		ClientID:     id,
		ClientSecret: secret,
		Token:        r.PostForm.Get("token"),
	})
	if err != nil {
		s.fail(w, r, "revoke", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	var body struct {
		engine.SignInRequest
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, "sessions", badRequest("invalid JSON body"))
		return
	}
	req := body.SignInRequest
	if id, secret, ok := basicCredentials(r); ok {
		req.ClientID, req.ClientSecret, req.BasicAuth = id, secret, true
	} else {
		req.ClientID, req.ClientSecret = body.ClientID, body.ClientSecret
	}
	req.DeviceName = deviceName(r, req.DeviceName)
	req.IP = clientIP(r)

	resp, err := s.eng.IssueSessionToken(r.Context(), middleware.TenantFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, "sessions", err)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}
