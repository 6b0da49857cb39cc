package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Session store sentinels.
var (
	// ErrSessionNotFound is returned when no session matches a token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session exists but its MCP
	// token lifetime has elapsed.
	ErrSessionExpired = errors.New("session expired")
)

// OAuthError represents an OAuth 2.1 protocol error with the standard
// error code, a human-readable description, and the HTTP status to
// respond with.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth error constructors. Codes follow RFC 6749 section 5.2
// and RFC 7591 section 3.2.2.

func ErrInvalidRequest(description string) *OAuthError {
	return &OAuthError{Code: "invalid_request", Description: description, Status: http.StatusBadRequest}
}

func ErrInvalidClient(description string) *OAuthError {
	return &OAuthError{Code: "invalid_client", Description: description, Status: http.StatusUnauthorized}
}

func ErrInvalidGrant(description string) *OAuthError {
	return &OAuthError{Code: "invalid_grant", Description: description, Status: http.StatusBadRequest}
}

func ErrUnsupportedGrantType(description string) *OAuthError {
	return &OAuthError{Code: "unsupported_grant_type", Description: description, Status: http.StatusBadRequest}
}

func ErrUnsupportedResponseType(description string) *OAuthError {
	return &OAuthError{Code: "unsupported_response_type", Description: description, Status: http.StatusBadRequest}
}

func ErrInvalidRedirectURI(description string) *OAuthError {
	return &OAuthError{Code: "invalid_redirect_uri", Description: description, Status: http.StatusBadRequest}
}

func ErrInvalidClientMetadata(description string) *OAuthError {
	return &OAuthError{Code: "invalid_client_metadata", Description: description, Status: http.StatusBadRequest}
}

func ErrAccessDenied(description string) *OAuthError {
	return &OAuthError{Code: "access_denied", Description: description, Status: http.StatusForbidden}
}

func ErrServerError(description string) *OAuthError {
	return &OAuthError{Code: "server_error", Description: description, Status: http.StatusInternalServerError}
}

func ErrTemporarilyUnavailable(description string) *OAuthError {
	return &OAuthError{Code: "temporarily_unavailable", Description: description, Status: http.StatusServiceUnavailable}
}
