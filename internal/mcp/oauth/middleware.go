package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
)

type contextKey string

const authContextKey contextKey = "oauth.auth"

// AuthContext carries the authenticated session identity through the
// request context into tool handlers.
type AuthContext struct {
	SessionID string
	Email     string
	UserHash  string
	CompanyID string
	Scope     string
}

// AuthFromContext returns the authenticated identity, if any.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey).(*AuthContext)
	return auth, ok
}

// WithAuthContext returns a context carrying the given identity. Exported
// for the stdio transport, which binds a single-tenant session without
// HTTP middleware.
func WithAuthContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// ValidateToken resolves a Bearer token to its session.
func (h *Handler) ValidateToken(token string) (*Session, error) {
	if !strings.HasPrefix(token, MCPTokenPrefix) {
		return nil, ErrSessionNotFound
	}
	return h.store.Get(token)
}

// Middleware authenticates requests to the protected resource. Missing or
// invalid tokens get a 401 with the WWW-Authenticate header pointing at
// the protected resource metadata (RFC 9728).
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.unauthorized(w, "missing bearer token")
			return
		}

		session, err := h.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, ErrSessionExpired):
				h.logger.Debug("request with expired session", logging.SessionHash(token))
				h.unauthorized(w, "token expired")
			default:
				h.unauthorized(w, "invalid token")
			}
			return
		}

		auth := &AuthContext{
			SessionID: session.ID,
			Email:     session.Email,
			UserHash:  session.UserHash,
			CompanyID: session.CompanyID,
			Scope:     session.Scope,
		}
		next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), auth)))
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, description string) {
	resourceMetadata := strings.TrimRight(h.config.Issuer, "/") + "/.well-known/oauth-protected-resource"
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer realm="%s", error="invalid_token", error_description="%s", resource_metadata="%s"`,
			h.config.Resource, description, resourceMetadata))
	writeError(w, &OAuthError{Code: "invalid_token", Description: description, Status: http.StatusUnauthorized}, 0)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}
