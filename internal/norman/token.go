package norman

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
)

const (
	// tokenPath is Norman's password login endpoint.
	tokenPath = "api/v1/auth/token/"

	// tokenRefreshPath exchanges a refresh token for a new access token.
	tokenRefreshPath = "api/v1/auth/token/refresh/"

	// DefaultAccessTokenLifetime is assumed when the access JWT carries no
	// exp claim. Norman access tokens are valid for 24 hours.
	DefaultAccessTokenLifetime = 24 * time.Hour

	// maxTokenAttempts bounds retries of transient token endpoint failures.
	maxTokenAttempts = 3
)

// Credentials is an email/password pair for Norman's password login.
type Credentials struct {
	Email    string
	Password string
}

// Valid reports whether both fields are present.
func (c Credentials) Valid() bool {
	return c.Email != "" && c.Password != ""
}

// Username derives the Norman login username from the account email.
// Norman expects the local part of the email.
func (c Credentials) Username() string {
	if idx := strings.Index(c.Email, "@"); idx > 0 {
		return c.Email[:idx]
	}
	return c.Email
}

// TokenClient authenticates against Norman's token endpoints.
type TokenClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewTokenClient creates a TokenClient for the given API base URL.
// If logger is nil the default slog-backed logger is used.
func NewTokenClient(baseURL string, timeout time.Duration, logger logging.Logger) *TokenClient {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &TokenClient{
		baseURL:    strings.TrimSuffix(baseURL, "/") + "/",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// tokenPairResponse is the JSON shape of Norman's token endpoints.
type tokenPairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Exchange performs Norman's password login and returns the resulting
// token pair. Credential rejections return ErrInvalidCredentials without
// retrying; server errors and transport failures are retried with
// exponential backoff before surfacing ErrUpstreamUnavailable.
func (c *TokenClient) Exchange(ctx context.Context, creds Credentials) (*oauth2.Token, error) {
	if !creds.Valid() {
		return nil, ErrInvalidCredentials
	}

	payload := map[string]string{
		"username": creds.Username(),
		"email":    creds.Email,
		"password": creds.Password,
	}

	pair, err := c.postToken(ctx, tokenPath, payload, ErrInvalidCredentials)
	if err != nil {
		return nil, err
	}
	if pair.Access == "" || pair.Refresh == "" {
		return nil, fmt.Errorf("%w: token endpoint returned an incomplete pair", ErrUpstreamUnavailable)
	}

	c.logger.Info("authenticated with Norman",
		logging.KeyOperation, "token.exchange",
		logging.KeyUserHash, logging.AnonymizeEmail(creds.Email),
	)

	return newToken(pair.Access, pair.Refresh), nil
}

// Refresh exchanges a refresh token for a fresh access token. A rejected
// refresh token returns ErrRefreshRejected and is terminal for the session
// that held it; transient failures return ErrUpstreamUnavailable and leave
// the session usable.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrRefreshRejected
	}

	payload := map[string]string{"refresh": refreshToken}

	pair, err := c.postToken(ctx, tokenRefreshPath, payload, ErrRefreshRejected)
	if err != nil {
		return nil, err
	}
	if pair.Access == "" {
		return nil, fmt.Errorf("%w: refresh endpoint returned no access token", ErrUpstreamUnavailable)
	}

	// Norman may rotate the refresh token; keep the old one when it doesn't.
	if pair.Refresh == "" {
		pair.Refresh = refreshToken
	}

	c.logger.Debug("refreshed Norman access token",
		logging.KeyOperation, "token.refresh",
	)

	return newToken(pair.Access, pair.Refresh), nil
}

// postToken posts a JSON payload to a token endpoint with bounded retry.
// rejectionErr is returned for 400/401 responses, which signal that the
// submitted secret is wrong rather than that the upstream is struggling.
func (c *TokenClient) postToken(ctx context.Context, path string, payload map[string]string, rejectionErr error) (*tokenPairResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	operation := func() (*tokenPairResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Transport failure, worth retrying.
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusOK:
			var pair tokenPairResponse
			if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("failed to decode token response: %w", err))
			}
			return &pair, nil

		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
			// The secret was rejected. Retrying cannot help.
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, backoff.Permanent(rejectionErr)

		case resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("%w: token endpoint returned status %d", ErrUpstreamUnavailable, resp.StatusCode)

		default:
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, backoff.Permanent(fmt.Errorf("token endpoint returned unexpected status %d", resp.StatusCode))
		}
	}

	pair, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTokenAttempts),
	)
	if err != nil {
		if errors.Is(err, ErrUpstreamUnavailable) {
			c.logger.Warn("Norman token endpoint unavailable",
				logging.KeyOperation, "token.post",
				logging.KeyError, err.Error(),
			)
		}
		return nil, err
	}
	return pair, nil
}

// newToken builds an oauth2.Token from a Norman JWT pair. The expiry is
// read from the access token's exp claim so proactive refresh decisions
// match the upstream's actual lifetime.
func newToken(access, refresh string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Expiry:       accessTokenExpiry(access),
	}
}

// accessTokenExpiry extracts the exp claim from a JWT without verifying
// its signature. Verification belongs to Norman; we only need the lifetime.
func accessTokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(DefaultAccessTokenLifetime)
}
