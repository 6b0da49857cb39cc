package oauth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
)

// validateRedirectURI enforces the redirect URI rules: absolute URI, no
// fragment, no dangerous scheme, and HTTPS outside loopback.
func (h *Handler) validateRedirectURI(uri string) *OAuthError {
	if uri == "" {
		return ErrInvalidRedirectURI("redirect_uri is required")
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return ErrInvalidRedirectURI("redirect_uri is not a valid URI")
	}
	if parsed.Fragment != "" {
		return ErrInvalidRedirectURI("redirect_uri must not contain a fragment")
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ErrInvalidRedirectURI("redirect_uri must be absolute")
	}

	scheme := strings.ToLower(parsed.Scheme)
	for _, dangerous := range DangerousSchemes {
		if scheme == dangerous {
			return ErrInvalidRedirectURI("redirect_uri scheme is not allowed")
		}
	}

	// http is tolerated for loopback redirects only (native clients).
	if scheme == "http" && !isLoopbackHost(parsed.Hostname()) {
		return ErrInvalidRedirectURI("redirect_uri must use https outside loopback")
	}
	return nil
}

// authenticateClient verifies client credentials on the token endpoint.
// Confidential clients present their secret via Basic auth or form body;
// public clients ("none") are identified by client_id alone.
func (h *Handler) authenticateClient(r *http.Request) (*RegisteredClient, *OAuthError) {
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")

	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		if decodedID, err := url.QueryUnescape(basicID); err == nil {
			basicID = decodedID
		}
		if decodedSecret, err := url.QueryUnescape(basicSecret); err == nil {
			basicSecret = decodedSecret
		}
		clientID = basicID
		clientSecret = basicSecret
	}

	if clientID == "" {
		return nil, ErrInvalidClient("client authentication required")
	}
	client, ok := h.clientStore.Get(clientID)
	if !ok {
		return nil, ErrInvalidClient("unknown client")
	}

	if client.IsPublic() {
		return client, nil
	}
	if clientSecret == "" {
		return nil, ErrInvalidClient("client_secret required")
	}
	if !h.clientStore.ValidateSecret(clientID, clientSecret) {
		h.logger.Warn("client authentication failed",
			"client_id", clientID,
			"secret_digest", hashForLogging(clientSecret),
		)
		return nil, ErrInvalidClient("invalid client credentials")
	}
	return client, nil
}

// issueSession exchanges Norman credentials for an upstream token pair and
// mints the session record. The caller decides which MCP token pair wraps
// it (authorization-code flow or stdio single-tenant binding).
func (h *Handler) issueSession(r *http.Request, pending *PendingAuthorization, creds norman.Credentials) (*Session, error) {
	upstream, err := h.config.Upstream.Exchange(r.Context(), creds)
	if err != nil {
		return nil, err
	}

	companyID := ""
	if h.config.Companies != nil {
		companyID, err = h.config.Companies.FirstCompanyID(r.Context(), upstream.AccessToken)
		if err != nil {
			// Company resolution is best-effort at login; tools resolve
			// lazily on first use.
			h.logger.Warn("company resolution failed at login",
				logging.UserHash(creds.Email), logging.Err(err))
			companyID = ""
			err = nil
		}
	}

	session, err := NewSession(pending.ClientID, creds.Email, companyID, pending.Scope,
		upstream, h.config.AccessTokenTTL, h.config.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	h.store.Put(session)

	h.logger.Info("session established",
		"user", session.UserHash,
		"client_id", session.ClientID,
		logging.Company(companyID),
	)
	return session, nil
}
