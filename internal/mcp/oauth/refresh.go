package oauth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
)

// SessionRefresher keeps the upstream Norman token pair of a session
// fresh. Refreshes are serialized per session: when several requests hit
// a stale token at once, one of them performs the upstream call and the
// rest reuse its result.
type SessionRefresher struct {
	store    *SessionStore
	upstream TokenExchanger
	logger   logging.Logger
}

// NewSessionRefresher builds a refresher over the given store and
// upstream client.
func NewSessionRefresher(store *SessionStore, upstream TokenExchanger, logger logging.Logger) *SessionRefresher {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &SessionRefresher{store: store, upstream: upstream, logger: logger}
}

// Fresh returns an upstream access token for the session, proactively
// refreshing it when expiry is near. A refresh rejected by Norman deletes
// the session; a transient upstream failure keeps the session intact and
// surfaces norman.ErrUpstreamUnavailable.
func (sr *SessionRefresher) Fresh(ctx context.Context, sessionID string) (string, error) {
	session, err := sr.store.Get(sessionID)
	if err != nil {
		return "", err
	}
	if !session.UpstreamStale() {
		return session.Upstream.AccessToken, nil
	}

	token, err := sr.refreshSerialized(ctx, sessionID, func(current *Session) bool {
		return current.UpstreamStale()
	})
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// RefreshIfCurrent handles the reactive path after an upstream 401: the
// caller passes the access token it just used. If the session already
// carries a different token, another request refreshed in the meantime
// and the current token is returned without an upstream call.
func (sr *SessionRefresher) RefreshIfCurrent(ctx context.Context, sessionID, staleAccessToken string) (string, error) {
	token, err := sr.refreshSerialized(ctx, sessionID, func(current *Session) bool {
		return current.Upstream == nil || current.Upstream.AccessToken == staleAccessToken
	})
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// refreshSerialized performs the refresh under the per-session guard.
// needsRefresh re-checks the condition after acquiring the guard, so a
// waiter whose predecessor already refreshed skips the upstream call.
func (sr *SessionRefresher) refreshSerialized(ctx context.Context, sessionID string, needsRefresh func(*Session) bool) (*oauth2.Token, error) {
	guard := sr.store.RefreshGuard(sessionID)
	guard.Lock()
	defer guard.Unlock()

	session, err := sr.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !needsRefresh(session) {
		return session.Upstream, nil
	}
	if session.Upstream == nil || session.Upstream.RefreshToken == "" {
		sr.store.Delete(sessionID)
		return nil, norman.ErrRefreshRejected
	}

	refreshed, err := sr.upstream.Refresh(ctx, session.Upstream.RefreshToken)
	switch {
	case err == nil:
		if putErr := sr.store.ReplaceUpstreamToken(sessionID, refreshed); putErr != nil {
			return nil, putErr
		}
		sr.logger.Debug("upstream token refreshed",
			"user", session.UserHash, logging.SessionHash(sessionID))
		return refreshed, nil

	case errors.Is(err, norman.ErrRefreshRejected):
		// Norman no longer honors the refresh token. The session is
		// dead; the user must re-authenticate.
		sr.logger.Info("upstream refresh rejected, ending session",
			"user", session.UserHash, logging.SessionHash(sessionID))
		sr.store.Delete(sessionID)
		return nil, err

	default:
		// Transient failure: keep the session, the next request will
		// retry the refresh.
		sr.logger.Warn("upstream refresh failed transiently",
			"user", session.UserHash, logging.Err(err))
		return nil, err
	}
}
