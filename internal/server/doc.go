// Package server provides the MCP server context, transports, and
// operational endpoints for the norman-mcp application.
//
// # Key Components
//
// ServerContext carries the shared dependencies of all tool handlers: the
// Norman API clients, the session store binding MCP tokens to upstream
// identities, and the instrumentation sinks. Its CallAPI method is the
// single path tools use to reach Norman: it resolves the caller's session,
// keeps the upstream token pair fresh, and retries exactly once when
// Norman rejects a token mid-call.
//
// HTTPServer serves the streamable-http MCP transport behind the embedded
// OAuth 2.1 authorization server:
//   - Authorization Server Metadata (RFC 8414)
//   - Protected Resource Metadata (RFC 9728)
//   - Dynamic Client Registration (RFC 7591)
//   - Authorization code flow with mandatory PKCE
//   - Token Revocation (RFC 7009)
//
// The stdio transport skips the OAuth surface entirely; ServerContext
// binds a single-tenant session to the NORMAN_EMAIL / NORMAN_PASSWORD
// credentials on first tool use.
//
// HealthChecker exposes /healthz and /readyz for Kubernetes probes, and
// MetricsServer serves Prometheus metrics on a dedicated port so
// operational data never shares a listener with user traffic.
package server
