package oauth

import (
	"time"

	"golang.org/x/oauth2"
)

// RegisteredClient is a dynamically registered OAuth client (RFC 7591).
// The secret is stored as a bcrypt hash; the plaintext leaves the server
// exactly once, in the registration response.
type RegisteredClient struct {
	ClientID                string
	SecretHash              []byte
	RedirectURIs            []string
	TokenEndpointAuthMethod string
	GrantTypes              []string
	ResponseTypes           []string
	ClientName              string
	Scope                   string
	CreatedAt               time.Time
	RegistrationIP          string
}

// IsPublic reports whether the client authenticates without a secret.
func (c *RegisteredClient) IsPublic() bool {
	return c.TokenEndpointAuthMethod == "none"
}

// HasRedirectURI reports whether uri is one of the registered redirect URIs.
func (c *RegisteredClient) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ClientRegistrationRequest is the RFC 7591 registration request body.
type ClientRegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// ClientRegistrationResponse is the RFC 7591 registration response body.
type ClientRegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// PendingAuthorization holds the client's authorization request parameters
// between the /oauth/authorize redirect and the login form submission.
// Keyed by an opaque state token carried through the login form.
type PendingAuthorization struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string // the client's own state, echoed back on redirect
	CodeChallenge       string
	CodeChallengeMethod string
	Resource            string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// IsExpired reports whether the pending flow has timed out.
func (p *PendingAuthorization) IsExpired() bool {
	return time.Now().After(p.ExpiresAt)
}

// AuthorizationCode is a single-use code minted after a successful login,
// redeemable once at the token endpoint.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	SessionID           string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// IsExpired reports whether the code has expired.
func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// Session binds an issued MCP token pair to the upstream Norman identity
// it authenticates as. Sessions live in memory only; a restart logs
// everyone out.
type Session struct {
	// ID is the MCP access token itself (opaque, "mcp_" prefixed). It
	// doubles as the session key and must never be logged verbatim.
	ID string

	// RefreshHandle is the MCP refresh token bound to this session.
	RefreshHandle string

	ClientID  string
	Email     string
	UserHash  string // anonymized identity for logging
	CompanyID string
	Scope     string

	// Upstream is the Norman JWT pair acting for this user. Replaced
	// in place when the upstream access token is refreshed.
	Upstream *oauth2.Token

	CreatedAt        time.Time
	ExpiresAt        time.Time // MCP access token expiry
	RefreshExpiresAt time.Time // MCP refresh handle expiry
}

// IsExpired reports whether the MCP access token lifetime has elapsed.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// UpstreamStale reports whether the upstream access token is expired or
// within the proactive refresh threshold.
func (s *Session) UpstreamStale() bool {
	if s.Upstream == nil {
		return true
	}
	if s.Upstream.Expiry.IsZero() {
		return false
	}
	return time.Until(s.Upstream.Expiry) < UpstreamRefreshThreshold
}

// clone returns a copy safe to hand to callers outside the store lock.
func (s *Session) clone() *Session {
	dup := *s
	if s.Upstream != nil {
		tok := *s.Upstream
		dup.Upstream = &tok
	}
	return &dup
}

// TokenResponse is the token endpoint success body (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON error body for OAuth endpoints.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// AuthorizationServerMetadata is the RFC 8414 discovery document.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
}

// ProtectedResourceMetadata is the RFC 9728 discovery document.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
}
