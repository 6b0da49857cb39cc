package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientStore_RegisterAndValidate(t *testing.T) {
	cs := NewClientStore(10)

	client, secret, oerr := cs.Register(&ClientRegistrationRequest{
		RedirectURIs: []string{"https://app.example.com/callback"},
		ClientName:   "Example",
	}, "203.0.113.7")
	require.Nil(t, oerr)
	require.NotEmpty(t, secret)
	assert.Equal(t, "client_secret_basic", client.TokenEndpointAuthMethod)
	assert.Equal(t, DefaultGrantTypes, client.GrantTypes)

	// Only the hash is stored.
	assert.NotContains(t, string(client.SecretHash), secret)
	assert.True(t, cs.ValidateSecret(client.ClientID, secret))
	assert.False(t, cs.ValidateSecret(client.ClientID, "wrong"))
}

func TestClientStore_PublicClientHasNoSecret(t *testing.T) {
	cs := NewClientStore(10)

	client, secret, oerr := cs.Register(&ClientRegistrationRequest{
		RedirectURIs:            []string{"http://127.0.0.1:9999/cb"},
		TokenEndpointAuthMethod: "none",
	}, "")
	require.Nil(t, oerr)
	assert.Empty(t, secret)
	assert.True(t, client.IsPublic())
	assert.False(t, cs.ValidateSecret(client.ClientID, ""))
}

func TestClientStore_RequiresRedirectURIs(t *testing.T) {
	cs := NewClientStore(10)
	_, _, oerr := cs.Register(&ClientRegistrationRequest{}, "")
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_client_metadata", oerr.Code)
}

func TestClientStore_PerIPLimit(t *testing.T) {
	cs := NewClientStore(2)
	req := &ClientRegistrationRequest{RedirectURIs: []string{"https://app.example.com/cb"}}

	for i := 0; i < 2; i++ {
		_, _, oerr := cs.Register(req, "198.51.100.1")
		require.Nil(t, oerr)
	}
	_, _, oerr := cs.Register(req, "198.51.100.1")
	require.NotNil(t, oerr)

	// A different address is unaffected.
	_, _, oerr = cs.Register(req, "198.51.100.2")
	assert.Nil(t, oerr)
}

func TestClientStore_RejectsUnknownGrantType(t *testing.T) {
	cs := NewClientStore(10)
	_, _, oerr := cs.Register(&ClientRegistrationRequest{
		RedirectURIs: []string{"https://app.example.com/cb"},
		GrantTypes:   []string{"client_credentials"},
	}, "")
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_client_metadata", oerr.Code)
}

func TestRegisteredClient_HasRedirectURI(t *testing.T) {
	client := &RegisteredClient{RedirectURIs: []string{"https://a/cb", "https://b/cb"}}
	assert.True(t, client.HasRedirectURI("https://b/cb"))
	assert.False(t, client.HasRedirectURI("https://b/cb/"))
}
