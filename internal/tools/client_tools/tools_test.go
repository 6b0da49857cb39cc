package client_tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/norman-finance/norman-mcp-go/internal/config"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
	"github.com/norman-finance/norman-mcp-go/internal/server"
)

type stubUpstream struct{}

func (stubUpstream) Exchange(context.Context, norman.Credentials) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "upstream-access", Expiry: time.Now().Add(time.Hour)}, nil
}

func (stubUpstream) Refresh(context.Context, string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "upstream-access", Expiry: time.Now().Add(time.Hour)}, nil
}

type stubCompanies struct{}

func (stubCompanies) FirstCompanyID(context.Context, string) (string, error) {
	return "co-8f3a", nil
}

func newToolFixture(t *testing.T, backend http.Handler) *server.ServerContext {
	t.Helper()
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	sc, err := server.NewServerContext(context.Background(), server.Options{
		Config: &config.Config{
			Email:       "jane@example.com",
			Password:    "secret",
			Environment: config.EnvironmentSandbox,
			APITimeout:  time.Second,
		},
		API:       norman.NewClient(ts.URL, time.Second, nil),
		Upstream:  stubUpstream{},
		Companies: stubCompanies{},
	})
	require.NoError(t, err)
	t.Cleanup(sc.Shutdown)
	return sc
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestRegisterClientTools(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterClientTools(s, sc, false))
	require.NoError(t, RegisterClientTools(s, sc, true))
}

func TestHandleListClients(t *testing.T) {
	var gotPath string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"id": "cl-1", "name": "Acme GmbH"}},
		})
	})
	sc := newToolFixture(t, backend)

	result, err := handleListClients(context.Background(), callRequest("list_clients", nil), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "/api/v1/companies/co-8f3a/clients/", gotPath)
}

func TestHandleCreateClient(t *testing.T) {
	var gotBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "cl-new"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleCreateClient(context.Background(), callRequest("create_client", map[string]interface{}{
		"name":      "Acme GmbH",
		"email":     "billing@acme.example",
		"vatNumber": "DE123456789",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "Acme GmbH", gotBody["name"])
	assert.Equal(t, "business", gotBody["clientType"])
	assert.Equal(t, "co-8f3a", gotBody["company"])
	assert.Equal(t, "billing@acme.example", gotBody["email"])
}

func TestHandleCreateClient_Validation(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{
			name: "missing name",
			args: map[string]interface{}{"email": "x@example.com"},
		},
		{
			name: "bad client type",
			args: map[string]interface{}{"name": "Acme", "clientType": "government"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handleCreateClient(context.Background(), callRequest("create_client", tt.args), sc)
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestHandleUpdateClient(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "cl-1"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleUpdateClient(context.Background(), callRequest("update_client", map[string]interface{}{
		"clientId": "cl-1",
		"city":     "Berlin",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/companies/co-8f3a/clients/cl-1/", gotPath)
	assert.Equal(t, "Berlin", gotBody["city"])
}

func TestHandleDeleteClient(t *testing.T) {
	var gotMethod, gotPath string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	sc := newToolFixture(t, backend)

	result, err := handleDeleteClient(context.Background(), callRequest("delete_client", map[string]interface{}{
		"clientId": "cl-1",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/v1/companies/co-8f3a/clients/cl-1/", gotPath)
}

func TestHandleGetClient_MissingID(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())

	result, err := handleGetClient(context.Background(), callRequest("get_client", nil), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
