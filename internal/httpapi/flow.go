package httpapi

import (
	"net/http"
	"strings"

	"authserver/internal/engine"
	"authserver/pkg/middleware"
)

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := s.eng.Authorize(r.Context(), middleware.TenantFrom(r.Context()), engine.AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		ResponseType:        q.Get("response_type"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		Prompt:              q.Get("prompt"),
		LoginHint:           q.Get("login_hint"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	})
	if err != nil {
		s.fail(w, r, "authorize", err)
		return
	}
	http.Redirect(w, r, loc, http.StatusFound)
}

func (s *Server) loginInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.eng.LoginRequest(r.Context(), middleware.TenantFrom(r.Context()), r.URL.Query().Get("login_challenge"))
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	writeJSON(w, info, http.StatusOK)
}

func (s *Server) loginAccept(w http.ResponseWriter, r *http.Request) {
	var req engine.LoginAcceptRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			s.fail(w, r, "login", badRequest("invalid form body"))
			return
		}
		req.LoginChallenge = firstForm(r, "loginChallenge", "login_challenge")
		req.RefreshToken = firstForm(r, "refreshToken", "refresh_token")
	} else if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "login", badRequest("invalid JSON body"))
		return
	}
	req.RefreshToken = s.refreshProof(r, req.RefreshToken)

	loc, err := s.eng.AcceptLogin(r.Context(), middleware.TenantFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	http.Redirect(w, r, loc, http.StatusFound)
}

func (s *Server) consentInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.eng.GetConsent(r.Context(), middleware.TenantFrom(r.Context()),
		r.URL.Query().Get("consent_challenge"), s.refreshProof(r, ""))
	if err != nil {
		s.fail(w, r, "consent", err)
		return
	}
	writeJSON(w, info, http.StatusOK)
}

func (s *Server) consentAccept(w http.ResponseWriter, r *http.Request) {
	var req engine.ConsentAcceptRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			s.fail(w, r, "consent", badRequest("invalid form body"))
			return
		}
		req.ConsentChallenge = firstForm(r, "consentChallenge", "consent_challenge")
		req.RefreshToken = firstForm(r, "refreshToken", "refresh_token")
		for _, v := range r.PostForm["consentedScopes"] {
			req.ConsentedScopes = append(req.ConsentedScopes, strings.Fields(v)...)
		}
	} else if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "consent", badRequest("invalid JSON body"))
		return
	}
	req.RefreshToken = s.refreshProof(r, req.RefreshToken)

	loc, err := s.eng.AcceptConsent(r.Context(), middleware.TenantFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, "consent", err)
		return
	}
	http.Redirect(w, r, loc, http.StatusFound)
}

func firstForm(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := r.PostForm.Get(k); v != "" {
			return v
		}
	}
	return ""
}
