package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/config"
	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/logging"
	"github.com/norman-finance/norman-mcp-go/internal/mcp/oauth"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
	"github.com/norman-finance/norman-mcp-go/internal/resources"
	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/client_tools"
	"github.com/norman-finance/norman-mcp-go/internal/tools/company_tools"
	"github.com/norman-finance/norman-mcp-go/internal/tools/document_tools"
	"github.com/norman-finance/norman-mcp-go/internal/tools/invoice_tools"
	"github.com/norman-finance/norman-mcp-go/internal/tools/registration_tools"
	"github.com/norman-finance/norman-mcp-go/internal/tools/tax_tools"
	"github.com/norman-finance/norman-mcp-go/internal/tools/transaction_tools"
)

const shutdownTimeout = 30 * time.Second

// serveOptions collects the flag values of the serve command.
type serveOptions struct {
	transport   string
	httpAddr    string
	publicURL   string
	environment string
	yolo        bool
	debug       bool

	allowPublicClientRegistration bool
	trustProxyHeaders             bool
	maxClientsPerIP               int

	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing the Norman
Finance accounting and tax API as tools for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default). Authenticates with the
    NORMAN_EMAIL and NORMAN_PASSWORD environment variables.
  - streamable-http: Streamable HTTP transport behind an embedded
    OAuth 2.1 authorization server. Clients log in with their own
    Norman credentials; this server never stores passwords.

Safety Mode:
  By default the server operates in read-only mode, providing only safe
  operations. Use --yolo to enable write operations (creating invoices,
  submitting tax reports, etc.)

Environment:
  NORMAN_ENVIRONMENT selects production (default) or sandbox.
  NORMAN_MCP_HOST / NORMAN_MCP_PORT set the HTTP listen address.
  NORMAN_MCP_PUBLIC_URL sets the external base URL used in OAuth
  metadata for deployed instances.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", "", "HTTP listen address for streamable-http transport (default from NORMAN_MCP_HOST/NORMAN_MCP_PORT)")
	cmd.Flags().StringVar(&opts.publicURL, "public-url", "", "External base URL for OAuth metadata (streamable-http only). Can also use NORMAN_MCP_PUBLIC_URL env var.")
	cmd.Flags().StringVar(&opts.environment, "environment", "", "Norman environment: production or sandbox. Can also use NORMAN_ENVIRONMENT env var.")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable write operations (creating transactions, sending invoices, submitting reports). Default is read-only mode.")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.Flags().BoolVar(&opts.allowPublicClientRegistration, "oauth-allow-public-registration", true, "Allow registering OAuth clients without a client secret (public clients with PKCE)")
	cmd.Flags().BoolVar(&opts.trustProxyHeaders, "trust-proxy-headers", false, "Trust X-Forwarded-For / X-Real-IP when running behind a reverse proxy")
	cmd.Flags().IntVar(&opts.maxClientsPerIP, "oauth-max-clients-per-ip", 0, "Maximum OAuth clients registered per source IP (0 uses the default)")

	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Enable the Prometheus metrics server on a dedicated port (streamable-http only)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(opts serveOptions) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.FromEnv()
	if opts.environment != "" {
		cfg.Environment = opts.environment
	}
	if !strings.EqualFold(cfg.Environment, config.EnvironmentProduction) &&
		!strings.EqualFold(cfg.Environment, config.EnvironmentSandbox) {
		return fmt.Errorf("unsupported environment %q (supported: production, sandbox)", cfg.Environment)
	}
	if opts.publicURL != "" {
		cfg.PublicURL = opts.publicURL
	}

	logger := newLogger(opts.debug)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	api := norman.NewClient(cfg.APIBaseURL(), cfg.APITimeout, logger)
	tokens := norman.NewTokenClient(cfg.APIBaseURL(), cfg.APITimeout, logger)

	readOnly := !opts.yolo
	if opts.transport != "stdio" {
		if readOnly {
			logger.Info("starting in read-only mode (use --yolo to enable write operations)")
		} else {
			logger.Info("starting with write operations enabled")
		}
	}

	switch opts.transport {
	case "stdio":
		return runStdioServer(shutdownCtx, cfg, logger, api, tokens, provider, instrConfig, readOnly)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, cfg, logger, api, tokens, provider, instrConfig, readOnly, opts)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}
}

// newLogger builds the process logger. Everything goes to stderr so the
// stdio transport keeps stdout free for the protocol.
func newLogger(debug bool) logging.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return logging.NewSlogAdapter(slog.New(handler))
}

func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("norman-mcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
}

// registerAllTools registers every Norman tool family.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	registrations := []struct {
		name     string
		register func() error
	}{
		{"Transactions", func() error { return transaction_tools.RegisterTransactionTools(mcpSrv, sc, readOnly) }},
		{"Clients", func() error { return client_tools.RegisterClientTools(mcpSrv, sc, readOnly) }},
		{"Invoices", func() error { return invoice_tools.RegisterInvoiceTools(mcpSrv, sc, readOnly) }},
		{"Taxes", func() error { return tax_tools.RegisterTaxTools(mcpSrv, sc, readOnly) }},
		{"Documents", func() error { return document_tools.RegisterDocumentTools(mcpSrv, sc, readOnly) }},
		{"Company", func() error { return company_tools.RegisterCompanyTools(mcpSrv, sc, readOnly) }},
		{"Tax Registration", func() error { return registration_tools.RegisterRegistrationTools(mcpSrv, sc, readOnly) }},
		{"Session Resources", func() error { return resources.RegisterNormanResources(mcpSrv, sc) }},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}
	return nil
}

func serverContextOptions(cfg *config.Config, logger logging.Logger, api *norman.Client, tokens *norman.TokenClient, provider *instrumentation.Provider, instrConfig instrumentation.Config, readOnly bool) server.Options {
	opts := server.Options{
		Config:   cfg,
		Logger:   logger,
		API:      api,
		Upstream: tokens,
		ReadOnly: readOnly,
	}
	if provider.Enabled() {
		opts.Metrics = provider.Metrics()
		opts.Audit = instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging)
	}
	return opts
}

func runStdioServer(ctx context.Context, cfg *config.Config, logger logging.Logger, api *norman.Client, tokens *norman.TokenClient, provider *instrumentation.Provider, instrConfig instrumentation.Config, readOnly bool) error {
	if err := cfg.ValidateForStdio(); err != nil {
		return err
	}

	sc, err := server.NewServerContext(ctx, serverContextOptions(cfg, logger, api, tokens, provider, instrConfig, readOnly))
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer sc.Shutdown()

	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

func runStreamableHTTPServer(ctx context.Context, cfg *config.Config, logger logging.Logger, api *norman.Client, tokens *norman.TokenClient, provider *instrumentation.Provider, instrConfig instrumentation.Config, readOnly bool, opts serveOptions) error {
	addr := opts.httpAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	}
	issuer := resolveIssuer(cfg.PublicURL, addr)
	logger.Info("oauth issuer resolved", "issuer", issuer)

	oauthHandler, err := oauth.NewHandler(oauth.Config{
		Issuer:    issuer,
		Upstream:  tokens,
		Companies: api,
		Logger:    logger,
		Security: oauth.SecurityConfig{
			AllowPublicClientRegistration: opts.allowPublicClientRegistration,
			TrustProxyHeaders:             opts.trustProxyHeaders,
			MaxClientsPerIP:               opts.maxClientsPerIP,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create OAuth handler: %w", err)
	}
	defer oauthHandler.Stop()

	// Share the OAuth session store so tool handlers see the same
	// identities the authorization server issued tokens for.
	scOpts := serverContextOptions(cfg, logger, api, tokens, provider, instrConfig, readOnly)
	scOpts.Sessions = oauthHandler.Sessions()
	scOpts.Refresher = oauthHandler.Refresher()

	sc, err := server.NewServerContext(ctx, scOpts)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer sc.Shutdown()

	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return err
	}

	var metricsServer *server.MetricsServer
	if opts.metricsEnabled && provider.Enabled() {
		metricsAddr := opts.metricsAddr
		if envAddr := os.Getenv("METRICS_ADDR"); envAddr != "" && metricsAddr == server.DefaultMetricsAddr {
			metricsAddr = envAddr
		}
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}
	defer func() {
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}
	}()

	httpSrv, err := server.NewHTTPServer(mcpSrv, oauthHandler, sc)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	httpSrv.Health().SetReady(true)

	logger.Info("streamable HTTP server starting",
		"addr", addr,
		"mcp_endpoint", "/mcp",
		"authorization_server", issuer,
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpSrv.Start(addr); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server stopped")
	return nil
}

// resolveIssuer picks the external base URL for OAuth metadata. Deployed
// instances must configure it explicitly; loopback development falls back
// to the listen address.
func resolveIssuer(publicURL, addr string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/")
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	if host, port, ok := strings.Cut(addr, ":"); ok && (host == "0.0.0.0" || host == "") {
		return "http://localhost:" + port
	}
	return "http://" + addr
}
