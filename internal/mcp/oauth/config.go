package oauth

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
)

// TokenExchanger abstracts the upstream Norman token endpoint. Satisfied
// by *norman.TokenClient; tests substitute fakes.
type TokenExchanger interface {
	Exchange(ctx context.Context, creds norman.Credentials) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// CompanyResolver resolves the active company for a freshly authenticated
// upstream token. Satisfied by *norman.Client.
type CompanyResolver interface {
	FirstCompanyID(ctx context.Context, accessToken string) (string, error)
}

// SecurityConfig groups the opt-in security relaxations and limits.
type SecurityConfig struct {
	// AllowPublicClientRegistration permits registering clients with
	// token_endpoint_auth_method "none".
	AllowPublicClientRegistration bool

	// DisableRefreshTokenRotation keeps refresh handles stable across
	// refresh_token grants. Rotation is on by default per OAuth 2.1.
	DisableRefreshTokenRotation bool

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP when the
	// server sits behind a reverse proxy.
	TrustProxyHeaders bool

	// MaxClientsPerIP caps dynamic registrations per source address.
	MaxClientsPerIP int

	// RateLimitRate and RateLimitBurst tune the per-IP token bucket on
	// the OAuth endpoints.
	RateLimitRate  int
	RateLimitBurst int
}

// Config configures the authorization server facade.
type Config struct {
	// Issuer is the external base URL of this server, e.g.
	// "https://mcp.example.com". Used in discovery metadata and as the
	// base for endpoint URLs.
	Issuer string

	// Resource is the protected resource identifier advertised via
	// RFC 9728. Defaults to Issuer + "/mcp".
	Resource string

	// Upstream performs credential exchange and token refresh against
	// Norman.
	Upstream TokenExchanger

	// Companies resolves the active company after login. Optional; when
	// nil, sessions carry an empty company ID until first tool use.
	Companies CompanyResolver

	AccessTokenTTL          time.Duration
	RefreshTokenTTL         time.Duration
	AuthorizationCodeTTL    time.Duration
	PendingAuthorizationTTL time.Duration
	CleanupInterval         time.Duration

	Security SecurityConfig

	Logger logging.Logger
}

// withDefaults fills zero values with package defaults.
func (c Config) withDefaults() Config {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.AuthorizationCodeTTL <= 0 {
		c.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if c.PendingAuthorizationTTL <= 0 {
		c.PendingAuthorizationTTL = DefaultPendingAuthorizationTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.Security.MaxClientsPerIP <= 0 {
		c.Security.MaxClientsPerIP = DefaultMaxClientsPerIP
	}
	if c.Security.RateLimitRate <= 0 {
		c.Security.RateLimitRate = DefaultRateLimitRate
	}
	if c.Security.RateLimitBurst <= 0 {
		c.Security.RateLimitBurst = DefaultRateLimitBurst
	}
	if c.Resource == "" {
		c.Resource = c.Issuer + "/mcp"
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	return c
}
