package norman

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for upstream authentication outcomes. Callers branch on
// these with errors.Is to decide whether a session can be kept.
var (
	// ErrInvalidCredentials indicates Norman rejected the email/password pair.
	ErrInvalidCredentials = errors.New("invalid Norman credentials")

	// ErrRefreshRejected indicates Norman rejected the refresh token. The
	// session that held it cannot be recovered without re-authentication.
	ErrRefreshRejected = errors.New("refresh token rejected by Norman")

	// ErrUpstreamUnavailable indicates the Norman API could not be reached
	// or kept failing with server errors after retries. The condition is
	// transient; existing sessions stay valid.
	ErrUpstreamUnavailable = errors.New("Norman API unavailable")
)

// APIError is a non-2xx response from an authenticated Norman API call.
type APIError struct {
	// StatusCode is the HTTP status returned by Norman.
	StatusCode int

	// Detail is the error detail extracted from the response body, if any.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("norman API error (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("norman API error (status %d)", e.StatusCode)
}

// IsUnauthorized reports whether err is an upstream 401. The caller uses
// this to trigger a single token refresh and retry.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
