package oauth

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
)

// NewSession mints a Session with a freshly generated MCP token pair.
// Used by the authorization-code flow and by the stdio transport, which
// binds one local session without going through the HTTP handler.
func NewSession(clientID, email, companyID, scope string, upstream *oauth2.Token, accessTTL, refreshTTL time.Duration) (*Session, error) {
	accessToken, err := newAccessToken()
	if err != nil {
		return nil, err
	}
	refreshHandle, err := newRefreshHandle()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		ID:               accessToken,
		RefreshHandle:    refreshHandle,
		ClientID:         clientID,
		Email:            email,
		UserHash:         logging.AnonymizeEmail(email),
		CompanyID:        companyID,
		Scope:            scope,
		Upstream:         upstream,
		CreatedAt:        now,
		ExpiresAt:        now.Add(accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
	}, nil
}
