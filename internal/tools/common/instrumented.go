package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/mcp/oauth"
	"github.com/norman-finance/norman-mcp-go/internal/server"
)

// InstrumentedToolHandler wraps a tool handler with metrics and audit logging.
// It records tool invocation metrics and logs the invocation for audit purposes.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(
	toolName string,
	sc *server.ServerContext,
	handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error),
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return instrumented(toolName, "", "", sc, handler)
}

// InstrumentedToolHandlerWithResource is like InstrumentedToolHandler but also
// records the Norman resource and operation type for more detailed metrics.
//
// This handler records both:
// - MCP tool invocation metrics (mcp_tool_invocations_total, mcp_tool_duration_seconds)
// - Norman API operation metrics (norman_api_operations_total, norman_api_operation_duration_seconds)
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandlerWithResource(
//		"list_invoices", instrumentation.ResourceInvoices, instrumentation.OperationList, sc, handler))
func InstrumentedToolHandlerWithResource(
	toolName string,
	resource string,
	operation string,
	sc *server.ServerContext,
	handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error),
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return instrumented(toolName, resource, operation, sc, handler)
}

func instrumented(
	toolName, resource, operation string,
	sc *server.ServerContext,
	handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error),
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)
		if resource != "" {
			invocation.WithResource(resource, operation)
		}

		// The identity is read from the request context only. Resolving it
		// any harder would trigger the lazy stdio login from inside the
		// instrumentation layer.
		if auth, ok := oauth.AuthFromContext(ctx); ok {
			invocation.WithUser(auth.Email).WithCompany(auth.CompanyID)
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			if err != nil {
				invocation.CompleteWithError(err)
			} else {
				invocation.Complete(false, nil)
			}
		} else {
			invocation.CompleteSuccess()
		}

		metrics := sc.Metrics()
		metrics.RecordToolInvocationWithCompany(ctx, toolName, status, invocation.CompanyID, duration)
		if resource != "" {
			metrics.RecordUpstreamOperation(ctx, resource, operation, status, duration)
		}

		sc.Audit().LogToolInvocation(invocation)

		return result, err
	}
}
