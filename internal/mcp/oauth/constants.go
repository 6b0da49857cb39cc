package oauth

import "time"

// Token and code lifetimes
const (
	// DefaultAccessTokenTTL is how long issued MCP access tokens are valid.
	// Matches the upstream Norman access token lifetime (24 hours).
	DefaultAccessTokenTTL = 24 * time.Hour

	// DefaultRefreshTokenTTL is the time-to-live for MCP refresh tokens (30 days)
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultAuthorizationCodeTTL is how long authorization codes are valid (10 minutes)
	DefaultAuthorizationCodeTTL = 10 * time.Minute

	// DefaultPendingAuthorizationTTL is how long a started-but-unfinished
	// login flow stays valid (10 minutes)
	DefaultPendingAuthorizationTTL = 10 * time.Minute

	// DefaultCleanupInterval is how often expired sessions and flow state
	// are swept (1 minute)
	DefaultCleanupInterval = 1 * time.Minute

	// DefaultRateLimitCleanupInterval is how often inactive per-IP rate
	// limiters are removed
	DefaultRateLimitCleanupInterval = 5 * time.Minute

	// InactiveLimiterWindow is how long an IP must be idle before its
	// limiter is discarded
	InactiveLimiterWindow = 10 * time.Minute

	// UpstreamRefreshThreshold is how soon before upstream access token
	// expiry a proactive refresh is attempted
	UpstreamRefreshThreshold = 5 * time.Minute
)

// Client and security defaults
const (
	// DefaultMaxClientsPerIP limits dynamic client registrations per IP
	DefaultMaxClientsPerIP = 10

	// DefaultRateLimitRate is the default requests per second per IP
	DefaultRateLimitRate = 10

	// DefaultRateLimitBurst is the default burst size for rate limiting
	DefaultRateLimitBurst = 20
)

// Token generation constants
const (
	// MCPTokenPrefix marks tokens minted by this server so they are
	// distinguishable from upstream Norman JWTs in logs and bug reports.
	MCPTokenPrefix = "mcp_"

	// MinCodeVerifierLength is the minimum length for PKCE code_verifier (RFC 7636)
	MinCodeVerifierLength = 43

	// MaxCodeVerifierLength is the maximum length for PKCE code_verifier (RFC 7636)
	MaxCodeVerifierLength = 128

	// ClientIDTokenLength is the byte length of generated client IDs
	ClientIDTokenLength = 32

	// ClientSecretTokenLength is the byte length of generated client secrets
	ClientSecretTokenLength = 48

	// AccessTokenLength is the byte length of generated access tokens
	AccessTokenLength = 32

	// RefreshTokenLength is the byte length of generated refresh handles
	RefreshTokenLength = 32

	// AuthorizationCodeLength is the byte length of generated codes
	AuthorizationCodeLength = 32

	// StateTokenLength is the byte length of generated login state tokens
	StateTokenLength = 32
)

// Redirect URI validation constants
var (
	// DangerousSchemes lists URI schemes that must never be allowed
	DangerousSchemes = []string{"javascript", "data", "file", "vbscript", "about"}

	// LoopbackAddresses lists recognized loopback hosts for development
	LoopbackAddresses = []string{"localhost", "127.0.0.1", "::1", "[::1]"}
)

// OAuth grant types and response types
var (
	// DefaultGrantTypes are the grant types supported by default
	DefaultGrantTypes = []string{"authorization_code", "refresh_token"}

	// DefaultResponseTypes are the response types supported by default
	DefaultResponseTypes = []string{"code"}

	// SupportedCodeChallengeMethods are the PKCE methods we accept.
	// Only S256: the plain method violates OAuth 2.1.
	SupportedCodeChallengeMethods = []string{"S256"}

	// SupportedTokenAuthMethods are the supported token endpoint auth methods
	SupportedTokenAuthMethods = []string{"client_secret_basic", "client_secret_post", "none"}
)
