package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, detailedLabels bool) *Provider {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
		DetailedLabels:  detailedLabels,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t, false).Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/mcp", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/mcp", 500, 50*time.Millisecond)
}

func TestMetrics_RecordUpstreamOperation(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t, false).Metrics()

	// Should not panic
	metrics.RecordUpstreamOperation(ctx, ResourceTransactions, OperationList, StatusSuccess, 200*time.Millisecond)
	metrics.RecordUpstreamOperation(ctx, ResourceInvoices, OperationCreate, StatusError, 500*time.Millisecond)
	metrics.RecordUpstreamOperation(ctx, ResourceDocuments, OperationGet, StatusSuccess, 100*time.Millisecond)
}

func TestMetrics_RecordOAuthAuth(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t, false).Metrics()

	// Should not panic
	metrics.RecordOAuthAuth(ctx, OAuthResultSuccess)
	metrics.RecordOAuthAuth(ctx, OAuthResultFailure)
}

func TestMetrics_RecordOAuthTokenRefresh(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t, false).Metrics()

	// Should not panic
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultFailure)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultExpired)
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t, false).Metrics()

	// Should not panic
	metrics.RecordToolInvocation(ctx, "list_transactions", StatusSuccess, 100*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "create_invoice", StatusError, 500*time.Millisecond)
}

func TestMetrics_RecordToolInvocationWithCompany(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t, false).Metrics()

	// Should not panic - company should be ignored without detailed labels
	metrics.RecordToolInvocationWithCompany(ctx, "list_transactions", StatusSuccess, "co-8f3a", 100*time.Millisecond)
}

func TestMetrics_RecordToolInvocationWithCompany_DetailedLabels(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t, true).Metrics()

	// Should not panic - company should be included
	metrics.RecordToolInvocationWithCompany(ctx, "list_transactions", StatusSuccess, "co-8f3a", 100*time.Millisecond)
}

func TestMetrics_ActiveSessions(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t, false).Metrics()

	// Should not panic
	metrics.IncrementActiveSessions(ctx)
	metrics.IncrementActiveSessions(ctx)
	metrics.DecrementActiveSessions(ctx)
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	// All these should not panic even with nil underlying metrics
	metrics.RecordHTTPRequest(ctx, "GET", "/mcp", 200, 100*time.Millisecond)
	metrics.RecordUpstreamOperation(ctx, ResourceTransactions, OperationList, StatusSuccess, 200*time.Millisecond)
	metrics.RecordOAuthAuth(ctx, OAuthResultSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	metrics.RecordToolInvocation(ctx, "test_tool", StatusSuccess, 100*time.Millisecond)
	metrics.RecordToolInvocationWithCompany(ctx, "test_tool", StatusSuccess, "co-8f3a", 100*time.Millisecond)
	metrics.IncrementActiveSessions(ctx)
	metrics.DecrementActiveSessions(ctx)
}
