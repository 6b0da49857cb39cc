package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/oauth2"

	"github.com/norman-finance/norman-mcp-go/internal/config"
	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/mcp/oauth"
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

func newTestServerContext(t *testing.T) *server.ServerContext {
	t.Helper()
	sc, err := server.NewServerContext(context.Background(), server.Options{
		Config:    &config.Config{Environment: config.EnvironmentSandbox, APITimeout: time.Second},
		API:       norman.NewClient("http://127.0.0.1:1/", time.Second, nil),
		Upstream:  stubUpstream{},
		Companies: stubCompanies{},
	})
	require.NoError(t, err)
	t.Cleanup(sc.Shutdown)
	return sc
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	sc := newTestServerContext(t)

	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", sc, handler)

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, called)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	sc := newTestServerContext(t)

	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := InstrumentedToolHandler("test_tool", sc, handler)

	_, err := wrapped(context.Background(), mcp.CallToolRequest{})
	assert.ErrorIs(t, err, expectedErr)
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	sc := newTestServerContext(t)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("error message"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", sc, handler)

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestInstrumentedToolHandlerWithResource_WithMetrics(t *testing.T) {
	sc := newTestServerContext(t)

	meter := noop.NewMeterProvider().Meter("test")
	metrics, err := instrumentation.NewMetrics(meter, false)
	require.NoError(t, err)

	sc2, err := server.NewServerContext(context.Background(), server.Options{
		Config:    sc.Config(),
		API:       sc.API(),
		Upstream:  stubUpstream{},
		Companies: stubCompanies{},
		Metrics:   metrics,
	})
	require.NoError(t, err)
	t.Cleanup(sc2.Shutdown)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		time.Sleep(time.Millisecond)
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandlerWithResource("list_invoices",
		instrumentation.ResourceInvoices, instrumentation.OperationList, sc2, handler)

	// With a noop meter the recorded values cannot be inspected; this
	// verifies the recording path executes without panics.
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestInstrumentedToolHandler_PicksUpRequestIdentity(t *testing.T) {
	sc := newTestServerContext(t)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}
	wrapped := InstrumentedToolHandler("test_tool", sc, handler)

	ctx := oauth.WithAuthContext(context.Background(), &oauth.AuthContext{
		SessionID: "mcp_session",
		Email:     "jane@example.com",
		CompanyID: "co-8f3a",
	})

	result, err := wrapped(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	require.NotNil(t, result)
}
