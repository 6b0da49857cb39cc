package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestSession(id, refreshHandle string) *Session {
	now := time.Now()
	return &Session{
		ID:            id,
		RefreshHandle: refreshHandle,
		ClientID:      "client-1",
		Email:         "alice@example.com",
		UserHash:      "user:abcd",
		Upstream: &oauth2.Token{
			AccessToken:  "upstream-access",
			RefreshToken: "upstream-refresh",
			Expiry:       now.Add(time.Hour),
		},
		CreatedAt:        now,
		ExpiresAt:        now.Add(DefaultAccessTokenTTL),
		RefreshExpiresAt: now.Add(DefaultRefreshTokenTTL),
	}
}

func TestSessionStore_PutGet(t *testing.T) {
	store := NewSessionStore(time.Hour)
	defer store.Stop()

	store.Put(newTestSession("mcp_a", "mcp_r"))

	got, err := store.Get("mcp_a")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	// Returned sessions are copies; mutating them must not leak back.
	got.Upstream.AccessToken = "tampered"
	again, err := store.Get("mcp_a")
	require.NoError(t, err)
	assert.Equal(t, "upstream-access", again.Upstream.AccessToken)
}

func TestSessionStore_GetUnknown(t *testing.T) {
	store := NewSessionStore(time.Hour)
	defer store.Stop()

	_, err := store.Get("mcp_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_GetExpired(t *testing.T) {
	store := NewSessionStore(time.Hour)
	defer store.Stop()

	session := newTestSession("mcp_old", "mcp_r")
	session.ExpiresAt = time.Now().Add(-time.Minute)
	store.Put(session)

	_, err := store.Get("mcp_old")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionStore_GetByRefreshHandle(t *testing.T) {
	store := NewSessionStore(time.Hour)
	defer store.Stop()

	// Access token expired but refresh handle still valid: the refresh
	// grant must still find the session.
	session := newTestSession("mcp_a", "mcp_r")
	session.ExpiresAt = time.Now().Add(-time.Minute)
	store.Put(session)

	got, err := store.GetByRefreshHandle("mcp_r")
	require.NoError(t, err)
	assert.Equal(t, "mcp_a", got.ID)

	session2 := newTestSession("mcp_b", "mcp_r2")
	session2.RefreshExpiresAt = time.Now().Add(-time.Minute)
	store.Put(session2)

	_, err = store.GetByRefreshHandle("mcp_r2")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionStore_Rotate(t *testing.T) {
	store := NewSessionStore(time.Hour)
	defer store.Stop()

	store.Put(newTestSession("mcp_a", "mcp_r"))

	now := time.Now()
	rotated, err := store.Rotate("mcp_a", "mcp_new", "mcp_newr", now.Add(time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "mcp_new", rotated.ID)
	assert.Equal(t, "alice@example.com", rotated.Email)

	_, err = store.Get("mcp_a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.GetByRefreshHandle("mcp_r")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	got, err := store.GetByRefreshHandle("mcp_newr")
	require.NoError(t, err)
	assert.Equal(t, "mcp_new", got.ID)
}

func TestSessionStore_ReplaceUpstreamToken(t *testing.T) {
	store := NewSessionStore(time.Hour)
	defer store.Stop()

	store.Put(newTestSession("mcp_a", "mcp_r"))

	fresh := &oauth2.Token{AccessToken: "fresh", RefreshToken: "fresh-r", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, store.ReplaceUpstreamToken("mcp_a", fresh))

	got, err := store.Get("mcp_a")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Upstream.AccessToken)

	assert.ErrorIs(t, store.ReplaceUpstreamToken("mcp_gone", fresh), ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	store := NewSessionStore(time.Hour)
	defer store.Stop()

	store.Put(newTestSession("mcp_a", "mcp_r"))
	store.Delete("mcp_a")

	_, err := store.Get("mcp_a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.GetByRefreshHandle("mcp_r")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, store.Count())
}

func TestSessionStore_CleanupSweepsExpiredRefresh(t *testing.T) {
	store := NewSessionStore(time.Hour)
	defer store.Stop()

	dead := newTestSession("mcp_dead", "mcp_deadr")
	dead.RefreshExpiresAt = time.Now().Add(-time.Minute)
	store.Put(dead)
	store.Put(newTestSession("mcp_live", "mcp_liver"))

	store.cleanupExpired()

	assert.Equal(t, 1, store.Count())
	_, err := store.Get("mcp_live")
	assert.NoError(t, err)
}

func TestSession_UpstreamStale(t *testing.T) {
	session := newTestSession("mcp_a", "mcp_r")
	assert.False(t, session.UpstreamStale())

	session.Upstream.Expiry = time.Now().Add(UpstreamRefreshThreshold - time.Minute)
	assert.True(t, session.UpstreamStale())

	session.Upstream = nil
	assert.True(t, session.UpstreamStale())
}
