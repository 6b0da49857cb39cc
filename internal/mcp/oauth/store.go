package oauth

import (
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// SessionStore keeps issued sessions in memory. Sessions are keyed by the
// MCP access token, with a secondary index by refresh handle. All lookups
// return defensive copies; mutations go through dedicated methods so the
// canonical record only changes under the write lock.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session // key: MCP access token
	byRefresh map[string]string   // refresh handle -> access token

	// refreshGuards serializes upstream refreshes per session so a burst
	// of stale requests triggers exactly one upstream call.
	guardMu       sync.Mutex
	refreshGuards map[string]*sync.Mutex

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewSessionStore creates a store and starts its background sweep.
func NewSessionStore(cleanupInterval time.Duration) *SessionStore {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	s := &SessionStore{
		sessions:        make(map[string]*Session),
		byRefresh:       make(map[string]string),
		refreshGuards:   make(map[string]*sync.Mutex),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Put stores a session, indexing it by access token and refresh handle.
func (s *SessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	if session.RefreshHandle != "" {
		s.byRefresh[session.RefreshHandle] = session.ID
	}
}

// Get returns a copy of the session for the given MCP access token.
func (s *SessionStore) Get(accessToken string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[accessToken]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired() {
		return nil, ErrSessionExpired
	}
	return session.clone(), nil
}

// GetByRefreshHandle returns a copy of the session owning the given MCP
// refresh handle. The session itself may have an expired access token;
// only the refresh handle lifetime matters here.
func (s *SessionStore) GetByRefreshHandle(handle string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRefresh[handle]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Now().After(session.RefreshExpiresAt) {
		return nil, ErrSessionExpired
	}
	return session.clone(), nil
}

// ReplaceUpstreamToken swaps the upstream Norman token pair on a live
// session. Returns ErrSessionNotFound if the session vanished meanwhile.
func (s *SessionStore) ReplaceUpstreamToken(accessToken string, upstream *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[accessToken]
	if !ok {
		return ErrSessionNotFound
	}
	tok := *upstream
	session.Upstream = &tok
	return nil
}

// SetCompanyID records the resolved company on a live session, so later
// requests skip the lookup.
func (s *SessionStore) SetCompanyID(accessToken, companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[accessToken]
	if !ok {
		return ErrSessionNotFound
	}
	session.CompanyID = companyID
	return nil
}

// Rotate replaces a session's MCP token pair in place, reindexing it under
// the new credentials. Used by the refresh_token grant: the old access
// token and refresh handle stop working atomically.
func (s *SessionStore) Rotate(oldAccessToken string, newAccessToken, newRefreshHandle string, expiresAt, refreshExpiresAt time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[oldAccessToken]
	if !ok {
		return nil, ErrSessionNotFound
	}

	delete(s.sessions, oldAccessToken)
	if session.RefreshHandle != "" {
		delete(s.byRefresh, session.RefreshHandle)
	}

	session.ID = newAccessToken
	session.RefreshHandle = newRefreshHandle
	session.ExpiresAt = expiresAt
	session.RefreshExpiresAt = refreshExpiresAt

	s.sessions[newAccessToken] = session
	s.byRefresh[newRefreshHandle] = newAccessToken
	return session.clone(), nil
}

// Delete removes a session and its refresh index entry.
func (s *SessionStore) Delete(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(accessToken)
}

func (s *SessionStore) deleteLocked(accessToken string) {
	if session, ok := s.sessions[accessToken]; ok {
		if session.RefreshHandle != "" {
			delete(s.byRefresh, session.RefreshHandle)
		}
		delete(s.sessions, accessToken)
	}
	s.guardMu.Lock()
	delete(s.refreshGuards, accessToken)
	s.guardMu.Unlock()
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RefreshGuard returns the per-session mutex serializing upstream
// refreshes for the given session.
func (s *SessionStore) RefreshGuard(accessToken string) *sync.Mutex {
	s.guardMu.Lock()
	defer s.guardMu.Unlock()
	guard, ok := s.refreshGuards[accessToken]
	if !ok {
		guard = &sync.Mutex{}
		s.refreshGuards[accessToken] = guard
	}
	return guard
}

// Stop terminates the background cleanup goroutine.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

func (s *SessionStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired sweeps sessions whose refresh handle lifetime has
// elapsed. Collect candidates under the read lock, then re-validate
// under the write lock so a concurrent Rotate never loses a session.
func (s *SessionStore) cleanupExpired() {
	now := time.Now()

	s.mu.RLock()
	var candidates []string
	for id, session := range s.sessions {
		if now.After(session.RefreshExpiresAt) {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range candidates {
		if session, ok := s.sessions[id]; ok && now.After(session.RefreshExpiresAt) {
			s.deleteLocked(id)
		}
	}
}
