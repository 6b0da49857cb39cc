package oauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
)

// Handler is the embedded OAuth 2.1 authorization server. It owns the
// session, flow, and client stores and serves the discovery, registration,
// authorization, login, token, and revocation endpoints.
type Handler struct {
	config      Config
	store       *SessionStore
	flowStore   *FlowStore
	clientStore *ClientStore
	rateLimiter *RateLimiter
	refresher   *SessionRefresher
	presenter   *LoginPresenter
	logger      logging.Logger
	isHTTPS     bool
}

// NewHandler validates the configuration and builds the facade.
func NewHandler(config Config) (*Handler, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("oauth: issuer URL is required")
	}
	issuer, err := url.Parse(config.Issuer)
	if err != nil || issuer.Scheme == "" || issuer.Host == "" {
		return nil, fmt.Errorf("oauth: invalid issuer URL %q", config.Issuer)
	}
	if issuer.Scheme != "https" && !isLoopbackHost(issuer.Hostname()) {
		return nil, fmt.Errorf("oauth: issuer must use https outside loopback, got %q", config.Issuer)
	}
	if config.Upstream == nil {
		return nil, fmt.Errorf("oauth: upstream token exchanger is required")
	}

	config = config.withDefaults()

	store := NewSessionStore(config.CleanupInterval)
	h := &Handler{
		config:      config,
		store:       store,
		flowStore:   NewFlowStore(config.CleanupInterval),
		clientStore: NewClientStore(config.Security.MaxClientsPerIP),
		rateLimiter: NewRateLimiter(config.Security.RateLimitRate, config.Security.RateLimitBurst,
			config.Security.TrustProxyHeaders, DefaultRateLimitCleanupInterval, config.Logger),
		refresher: NewSessionRefresher(store, config.Upstream, config.Logger),
		presenter: NewLoginPresenter(),
		logger:    config.Logger,
		isHTTPS:   issuer.Scheme == "https",
	}
	return h, nil
}

// Sessions exposes the session store for the request binding layer.
func (h *Handler) Sessions() *SessionStore { return h.store }

// Refresher exposes the upstream refresh coordinator.
func (h *Handler) Refresher() *SessionRefresher { return h.refresher }

// RegisterRoutes mounts all OAuth endpoints on the mux. The /mcp resource
// endpoint itself is mounted by the server package behind Middleware.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	limited := h.rateLimiter.Middleware

	mux.Handle("/.well-known/oauth-authorization-server", limited(http.HandlerFunc(h.serveAuthorizationServerMetadata)))
	mux.Handle("/.well-known/oauth-protected-resource", limited(http.HandlerFunc(h.serveProtectedResourceMetadata)))
	mux.Handle("/oauth/register", limited(http.HandlerFunc(h.serveRegistration)))
	mux.Handle("/oauth/authorize", limited(http.HandlerFunc(h.serveAuthorization)))
	mux.Handle("/oauth/login", limited(http.HandlerFunc(h.serveLogin)))
	mux.Handle("/oauth/token", limited(http.HandlerFunc(h.serveToken)))
	mux.Handle("/oauth/revoke", limited(http.HandlerFunc(h.serveRevocation)))
}

// Protect wraps a protected-resource handler with rate limiting and
// bearer-token authentication.
func (h *Handler) Protect(next http.Handler) http.Handler {
	return h.rateLimiter.Middleware(h.Middleware(next))
}

// Stop terminates the background goroutines of all stores.
func (h *Handler) Stop() {
	h.store.Stop()
	h.flowStore.Stop()
	h.rateLimiter.Stop()
}

func (h *Handler) serveAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		return
	}
	issuer := strings.TrimRight(h.config.Issuer, "/")
	metadata := AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/oauth/authorize",
		TokenEndpoint:                     issuer + "/oauth/token",
		RegistrationEndpoint:              issuer + "/oauth/register",
		RevocationEndpoint:                issuer + "/oauth/revoke",
		ResponseTypesSupported:            DefaultResponseTypes,
		GrantTypesSupported:               DefaultGrantTypes,
		CodeChallengeMethodsSupported:     SupportedCodeChallengeMethods,
		TokenEndpointAuthMethodsSupported: SupportedTokenAuthMethods,
	}
	writeJSON(w, http.StatusOK, metadata)
}

func (h *Handler) serveProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		return
	}
	metadata := ProtectedResourceMetadata{
		Resource:               h.config.Resource,
		AuthorizationServers:   []string{strings.TrimRight(h.config.Issuer, "/")},
		BearerMethodsSupported: []string{"header"},
	}
	writeJSON(w, http.StatusOK, metadata)
}

// serveRegistration implements RFC 7591 dynamic client registration.
func (h *Handler) serveRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req ClientRegistrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, ErrInvalidClientMetadata("malformed registration request"), 0)
		return
	}

	for _, uri := range req.RedirectURIs {
		if oerr := h.validateRedirectURI(uri); oerr != nil {
			writeError(w, oerr, 0)
			return
		}
	}
	if req.TokenEndpointAuthMethod == "none" && !h.config.Security.AllowPublicClientRegistration {
		writeError(w, ErrInvalidClientMetadata("public client registration is disabled"), 0)
		return
	}

	clientIP := getClientIP(r, h.config.Security.TrustProxyHeaders)
	client, secret, oerr := h.clientStore.Register(&req, clientIP)
	if oerr != nil {
		writeError(w, oerr, 0)
		return
	}

	h.logger.Info("registered oauth client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"auth_method", client.TokenEndpointAuthMethod,
	)

	resp := ClientRegistrationResponse{
		ClientID:                client.ClientID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
		ClientSecretExpiresAt:   0, // secrets do not expire
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		ClientName:              client.ClientName,
		Scope:                   client.Scope,
	}
	writeJSON(w, http.StatusCreated, resp)
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes an OAuth error response. A non-zero status overrides
// the error's default HTTP status.
func writeError(w http.ResponseWriter, oerr *OAuthError, status int) {
	if status == 0 {
		status = oerr.Status
	}
	writeJSON(w, status, ErrorResponse{Error: oerr.Code, ErrorDescription: oerr.Description})
}
