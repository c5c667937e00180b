package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"authserver/internal/engine"
	"authserver/internal/metrics"
	"authserver/pkg/middleware"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(desc string) *engine.OAuthError {
	return &engine.OAuthError{Code: engine.ErrCodeInvalidRequest, Description: desc, Status: http.StatusBadRequest}
}

// fail renders err either as a redirect carrying error/error_description/
// state or as the flat OAuth2 JSON body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var oe *engine.OAuthError
	if !errors.As(err, &oe) {
		oe = &engine.OAuthError{Code: engine.ErrCodeServerError, Description: "internal error", Status: http.StatusInternalServerError, Err: err}
	}
	metrics.OAuthError(endpoint, oe.Code)
	tenant := middleware.TenantFrom(r.Context()).ID
	reqID := middleware.RequestIDFrom(r.Context())
	if oe.Status >= http.StatusInternalServerError {
		s.log.Errorw("request failed", "endpoint", endpoint, "tenant", tenant, "request_id", reqID, "err", oe.Err)
	} else {
		s.log.Debugw("request rejected", "endpoint", endpoint, "tenant", tenant, "request_id", reqID, "error", oe.Code, "description", oe.Description)
	}

	if oe.Redirect() {
		if u, perr := url.Parse(oe.RedirectURI); perr == nil {
			q := u.Query()
			q.Set("error", oe.Code)
			if oe.Description != "" {
				q.Set("error_description", oe.Description)
			}
			if oe.State != "" {
				q.Set("state", oe.State)
			}
			u.RawQuery = q.Encode()
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}
	}
	if oe.Authenticate != "" {
		w.Header().Set("WWW-Authenticate", oe.Authenticate)
	}
	status := oe.Status
	if status == http.StatusFound {
		status = http.StatusBadRequest
	}
	writeJSON(w, oe.Response(), status)
}

// decodeJSON reads a JSON request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

// refreshProof finds the refresh token presented by the login or consent UI:
// body value first, then the cookie, then X-Refresh-Token.
func (s *Server) refreshProof(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if c, err := r.Cookie(s.cfg.RefreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.Header.Get("X-Refresh-Token"))
}

// basicCredentials returns the client credentials of an Authorization: Basic
// header, form-url-decoded per RFC 6749 section 2.3.1.
func basicCredentials(r *http.Request) (id, secret string, ok bool) {
	id, secret, ok = r.BasicAuth()
	if !ok {
		return "", "", false
	}
	if v, err := url.QueryUnescape(id); err == nil {
		id = v
	}
	if v, err := url.QueryUnescape(secret); err == nil {
		secret = v
	}
	return id, secret, id != ""
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func deviceName(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return r.UserAgent()
}
