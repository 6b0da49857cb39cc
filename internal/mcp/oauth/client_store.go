package oauth

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ClientStore holds dynamically registered OAuth clients in memory.
type ClientStore struct {
	mu              sync.RWMutex
	clients         map[string]*RegisteredClient
	registrationIPs map[string]int // IP -> registration count
	maxClientsPerIP int
}

// NewClientStore creates an empty client store.
func NewClientStore(maxClientsPerIP int) *ClientStore {
	if maxClientsPerIP <= 0 {
		maxClientsPerIP = DefaultMaxClientsPerIP
	}
	return &ClientStore{
		clients:         make(map[string]*RegisteredClient),
		registrationIPs: make(map[string]int),
		maxClientsPerIP: maxClientsPerIP,
	}
}

// Register creates a new client from a registration request. Returns the
// stored client plus the plaintext secret (empty for public clients); the
// plaintext is never retained.
func (cs *ClientStore) Register(req *ClientRegistrationRequest, clientIP string) (*RegisteredClient, string, *OAuthError) {
	if len(req.RedirectURIs) == 0 {
		return nil, "", ErrInvalidClientMetadata("redirect_uris is required")
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = "client_secret_basic"
	}
	if !contains(SupportedTokenAuthMethods, authMethod) {
		return nil, "", ErrInvalidClientMetadata("unsupported token_endpoint_auth_method: " + authMethod)
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = DefaultGrantTypes
	}
	for _, gt := range grantTypes {
		if !contains(DefaultGrantTypes, gt) {
			return nil, "", ErrInvalidClientMetadata("unsupported grant_type: " + gt)
		}
	}

	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = DefaultResponseTypes
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if clientIP != "" && cs.registrationIPs[clientIP] >= cs.maxClientsPerIP {
		return nil, "", ErrInvalidRequest("too many client registrations from this address")
	}

	// Client IDs are identifiers, not secrets; a UUID is enough.
	clientID := uuid.NewString()

	client := &RegisteredClient{
		ClientID:                clientID,
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
		Scope:                   req.Scope,
		CreatedAt:               time.Now(),
		RegistrationIP:          clientIP,
	}

	var plaintextSecret string
	if authMethod != "none" {
		secret, err := generateSecureToken(ClientSecretTokenLength)
		if err != nil {
			return nil, "", ErrServerError("failed to generate client_secret")
		}
		plaintextSecret = secret
		hash, err := bcrypt.GenerateFromPassword([]byte(plaintextSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", ErrServerError("failed to hash client_secret")
		}
		client.SecretHash = hash
	}

	cs.clients[clientID] = client
	if clientIP != "" {
		cs.registrationIPs[clientIP]++
	}
	return client, plaintextSecret, nil
}

// Get returns the registered client for an ID.
func (cs *ClientStore) Get(clientID string) (*RegisteredClient, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	client, ok := cs.clients[clientID]
	return client, ok
}

// ValidateSecret checks a plaintext secret against the stored bcrypt hash.
func (cs *ClientStore) ValidateSecret(clientID, secret string) bool {
	cs.mu.RLock()
	client, ok := cs.clients[clientID]
	cs.mu.RUnlock()
	if !ok || client.IsPublic() {
		return false
	}
	return bcrypt.CompareHashAndPassword(client.SecretHash, []byte(secret)) == nil
}

// Count returns the number of registered clients.
func (cs *ClientStore) Count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.clients)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
