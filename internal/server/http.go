package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/mcp/oauth"
)

// HTTP server timeouts. The write timeout is generous because Norman's
// report endpoints can take minutes and the MCP response streams through.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// HTTPServer serves the MCP streamable-http transport behind the embedded
// OAuth 2.1 authorization server. One mux carries the OAuth endpoints,
// the protected /mcp resource, and the health probes.
type HTTPServer struct {
	mcpServer    *mcpserver.MCPServer
	oauthHandler *oauth.Handler
	health       *HealthChecker
	httpServer   *http.Server
}

// NewHTTPServer wires the MCP server, the OAuth handler, and the health
// checker into a single HTTP surface.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, oauthHandler *oauth.Handler, sc *ServerContext) (*HTTPServer, error) {
	if mcpServer == nil {
		return nil, fmt.Errorf("server: mcp server is required")
	}
	if oauthHandler == nil {
		return nil, fmt.Errorf("server: oauth handler is required")
	}
	return &HTTPServer{
		mcpServer:    mcpServer,
		oauthHandler: oauthHandler,
		health:       NewHealthChecker(sc),
	}, nil
}

// Health returns the health checker so the caller can flip readiness
// during startup and drain.
func (s *HTTPServer) Health() *HealthChecker { return s.health }

// Handler builds the full HTTP handler. Exposed separately from Start for
// tests, which mount it on httptest servers.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Discovery, registration, login, token, and revocation endpoints.
	s.oauthHandler.RegisterRoutes(mux)

	// Kubernetes probes stay unauthenticated.
	s.health.RegisterHealthEndpoints(mux)

	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath("/mcp"),
	)
	mux.Handle("/mcp", s.oauthHandler.Protect(streamable))

	return mux
}

// Start listens on addr and serves until Shutdown. Blocking; run in a
// goroutine for non-blocking operation.
func (s *HTTPServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
