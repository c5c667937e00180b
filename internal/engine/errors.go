package engine

import (
	"fmt"
	"net/http"

	"authserver/pkg/problems"
)

// OAuth2 and engine-specific error codes.
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeServerError             = "server_error"

	ErrCodeInvalidChallenge     = "invalid_challenge"
	ErrCodeInvalidRefreshToken  = "invalid_refresh_token"
	ErrCodeRefreshTokenExpired  = "refresh_token_expired"
	ErrCodeRefreshTokenInactive = "refresh_token_inactive"
	ErrCodeSubjectMismatch      = "subject_mismatch"
)

// OAuthError is a protocol error. When RedirectURI is set the error is
// delivered as a redirect carrying error, error_description and state.
type OAuthError struct {
	Code        string
	Description string
	Status      int
	RedirectURI string
	State       string
	// Authenticate is sent as WWW-Authenticate when non-empty.
	Authenticate string
	Err          error
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *OAuthError) Unwrap() error { return e.Err }

// Redirect reports whether the error is delivered via redirect.
func (e *OAuthError) Redirect() bool { return e.RedirectURI != "" }

// Response is the flat JSON body.
func (e *OAuthError) Response() map[string]string {
	out := map[string]string{"error": e.Code}
	if e.Description != "" {
		out["error_description"] = e.Description
	}
	if uri := problems.Type(e.Code); uri != "" {
		out["error_uri"] = uri
	}
	return out
}

func newError(status int, code, desc string) *OAuthError {
	return &OAuthError{Code: code, Description: desc, Status: status}
}

func invalidRequest(desc string) *OAuthError {
	return newError(http.StatusBadRequest, ErrCodeInvalidRequest, desc)
}

func invalidGrant(desc string) *OAuthError {
	return newError(http.StatusBadRequest, ErrCodeInvalidGrant, desc)
}

func invalidScope(desc string) *OAuthError {
	return newError(http.StatusBadRequest, ErrCodeInvalidScope, desc)
}

func invalidChallenge() *OAuthError {
	return newError(http.StatusUnauthorized, ErrCodeInvalidChallenge, "Invalid challenge")
}

func unauthorizedClient(desc string) *OAuthError {
	return newError(http.StatusUnauthorized, ErrCodeUnauthorizedClient, desc)
}

func serverError(err error) *OAuthError {
	return &OAuthError{Code: ErrCodeServerError, Description: "internal error", Status: http.StatusInternalServerError, Err: err}
}

// redirectError targets a client's verified redirect_uri.
func redirectError(redirectURI, state, code, desc string) *OAuthError {
	return &OAuthError{Code: code, Description: desc, Status: http.StatusFound, RedirectURI: redirectURI, State: state}
}
