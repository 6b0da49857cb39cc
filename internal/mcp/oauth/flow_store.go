package oauth

import (
	"sync"
	"time"
)

// FlowStore holds in-flight authorization flow state: pending
// authorizations waiting for a login form submission, and single-use
// authorization codes waiting for redemption.
type FlowStore struct {
	mu      sync.RWMutex
	pending map[string]*PendingAuthorization // key: login state token
	codes   map[string]*AuthorizationCode    // key: code

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewFlowStore creates a flow store and starts its background sweep.
func NewFlowStore(cleanupInterval time.Duration) *FlowStore {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	f := &FlowStore{
		pending:         make(map[string]*PendingAuthorization),
		codes:           make(map[string]*AuthorizationCode),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go f.cleanupLoop()
	return f
}

// PutPending stores a pending authorization under its state token.
func (f *FlowStore) PutPending(stateToken string, pending *PendingAuthorization) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[stateToken] = pending
}

// GetPending returns the pending authorization for a state token without
// consuming it: the login form may be re-rendered on bad credentials.
func (f *FlowStore) GetPending(stateToken string) (*PendingAuthorization, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pending, ok := f.pending[stateToken]
	if !ok || pending.IsExpired() {
		return nil, false
	}
	return pending, true
}

// DeletePending removes a pending authorization after the flow completes
// or is abandoned.
func (f *FlowStore) DeletePending(stateToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, stateToken)
}

// PutCode stores an authorization code.
func (f *FlowStore) PutCode(code *AuthorizationCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code.Code] = code
}

// ConsumeCode redeems an authorization code. Lookup, expiry check, and
// deletion happen under one write lock, so concurrent redemption attempts
// see the code exactly once.
func (f *FlowStore) ConsumeCode(code string) (*AuthorizationCode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	authCode, ok := f.codes[code]
	if !ok {
		return nil, false
	}
	delete(f.codes, code)
	if authCode.IsExpired() {
		return nil, false
	}
	return authCode, true
}

// Stop terminates the background cleanup goroutine.
func (f *FlowStore) Stop() {
	f.stopOnce.Do(func() { close(f.stopCleanup) })
}

func (f *FlowStore) cleanupLoop() {
	ticker := time.NewTicker(f.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.cleanupExpired()
		case <-f.stopCleanup:
			return
		}
	}
}

func (f *FlowStore) cleanupExpired() {
	f.mu.RLock()
	var stalePending, staleCodes []string
	for token, pending := range f.pending {
		if pending.IsExpired() {
			stalePending = append(stalePending, token)
		}
	}
	for code, authCode := range f.codes {
		if authCode.IsExpired() {
			staleCodes = append(staleCodes, code)
		}
	}
	f.mu.RUnlock()

	if len(stalePending) == 0 && len(staleCodes) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range stalePending {
		if pending, ok := f.pending[token]; ok && pending.IsExpired() {
			delete(f.pending, token)
		}
	}
	for _, code := range staleCodes {
		if authCode, ok := f.codes[code]; ok && authCode.IsExpired() {
			delete(f.codes, code)
		}
	}
}
