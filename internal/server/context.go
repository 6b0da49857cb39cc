package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/norman-finance/norman-mcp-go/internal/config"
	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/logging"
	"github.com/norman-finance/norman-mcp-go/internal/mcp/oauth"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
)

// ServerContext carries the shared dependencies of the MCP server: the
// Norman API clients, the session store binding MCP tokens to upstream
// identities, and the instrumentation sinks. A single ServerContext is
// shared by all tool handlers and is safe for concurrent use.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg    *config.Config
	logger logging.Logger

	api       *norman.Client
	upstream  oauth.TokenExchanger
	companies oauth.CompanyResolver

	sessions     *oauth.SessionStore
	refresher    *oauth.SessionRefresher
	ownsSessions bool

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger

	readOnly bool

	mu             sync.Mutex
	localSessionID string
	shutdown       bool
}

// Options configures a ServerContext. Config, API, and Upstream are
// required; everything else has a working default.
type Options struct {
	Config *config.Config
	Logger logging.Logger

	// API performs authenticated REST calls against Norman.
	API *norman.Client

	// Upstream exchanges credentials and refreshes tokens at Norman's
	// auth endpoints.
	Upstream oauth.TokenExchanger

	// Companies resolves the active company for a token. Defaults to API.
	Companies oauth.CompanyResolver

	// Sessions and Refresher are shared with the OAuth handler in HTTP
	// mode. When nil the context owns a private store, which is the
	// stdio single-tenant setup.
	Sessions  *oauth.SessionStore
	Refresher *oauth.SessionRefresher

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger

	// ReadOnly disables all tools that modify Norman data.
	ReadOnly bool
}

// NewServerContext validates the options and builds the shared context.
func NewServerContext(ctx context.Context, opts Options) (*ServerContext, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("server: norman API client is required")
	}
	if opts.Upstream == nil {
		return nil, fmt.Errorf("server: upstream token client is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	if opts.Companies == nil {
		opts.Companies = opts.API
	}

	ownsSessions := false
	if opts.Sessions == nil {
		opts.Sessions = oauth.NewSessionStore(oauth.DefaultCleanupInterval)
		ownsSessions = true
	}
	if opts.Refresher == nil {
		opts.Refresher = oauth.NewSessionRefresher(opts.Sessions, opts.Upstream, opts.Logger)
	}
	if opts.Metrics == nil {
		opts.Metrics = &instrumentation.Metrics{}
	}
	if opts.Audit == nil {
		opts.Audit = instrumentation.NewAuditLogger(nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:          ctx,
		cancel:       cancel,
		cfg:          opts.Config,
		logger:       opts.Logger,
		api:          opts.API,
		upstream:     opts.Upstream,
		companies:    opts.Companies,
		sessions:     opts.Sessions,
		refresher:    opts.Refresher,
		ownsSessions: ownsSessions,
		metrics:      opts.Metrics,
		audit:        opts.Audit,
		readOnly:     opts.ReadOnly,
	}, nil
}

// Context returns the lifecycle context of the server.
func (sc *ServerContext) Context() context.Context { return sc.ctx }

// Config returns the runtime configuration.
func (sc *ServerContext) Config() *config.Config { return sc.cfg }

// Logger returns the structured logger.
func (sc *ServerContext) Logger() logging.Logger { return sc.logger }

// API returns the Norman REST client.
func (sc *ServerContext) API() *norman.Client { return sc.api }

// Sessions returns the session store.
func (sc *ServerContext) Sessions() *oauth.SessionStore { return sc.sessions }

// Refresher returns the upstream token refresh coordinator.
func (sc *ServerContext) Refresher() *oauth.SessionRefresher { return sc.refresher }

// Metrics returns the metrics sink. Never nil; a zero sink drops records.
func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.metrics }

// Audit returns the audit logger.
func (sc *ServerContext) Audit() *instrumentation.AuditLogger { return sc.audit }

// ReadOnly reports whether mutating tools are disabled.
func (sc *ServerContext) ReadOnly() bool { return sc.readOnly }

// Identity resolves the authenticated session for a request. HTTP requests
// carry it in the context, placed there by the OAuth middleware. Stdio
// requests fall back to the single-tenant session bound to the
// environment credentials, creating it on first use.
func (sc *ServerContext) Identity(ctx context.Context) (*oauth.AuthContext, error) {
	if auth, ok := oauth.AuthFromContext(ctx); ok {
		return auth, nil
	}
	return sc.localSession(ctx)
}

// localSession returns the stdio single-tenant session, performing the
// initial credential exchange on first use. Recreates the session when
// the previous one aged out of the store.
func (sc *ServerContext) localSession(ctx context.Context) (*oauth.AuthContext, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.localSessionID != "" {
		if session, err := sc.sessions.Get(sc.localSessionID); err == nil {
			return authFromSession(session), nil
		}
		sc.localSessionID = ""
	}

	creds := norman.Credentials{Email: sc.cfg.Email, Password: sc.cfg.Password}
	if !creds.Valid() {
		return nil, fmt.Errorf("no authenticated session: NORMAN_EMAIL and NORMAN_PASSWORD are not set")
	}

	upstream, err := sc.upstream.Exchange(ctx, creds)
	if err != nil {
		return nil, err
	}

	companyID, err := sc.companies.FirstCompanyID(ctx, upstream.AccessToken)
	if err != nil {
		// Resolved lazily on first company-scoped tool call instead.
		sc.logger.Warn("company resolution failed at startup", logging.Err(err))
		companyID = ""
	}

	session, err := oauth.NewSession("", creds.Email, companyID, "",
		upstream, oauth.DefaultAccessTokenTTL, oauth.DefaultRefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	sc.sessions.Put(session)
	sc.localSessionID = session.ID

	sc.logger.Info("local session established",
		"user", session.UserHash,
		logging.Company(companyID),
	)
	return authFromSession(session), nil
}

func authFromSession(session *oauth.Session) *oauth.AuthContext {
	return &oauth.AuthContext{
		SessionID: session.ID,
		Email:     session.Email,
		UserHash:  session.UserHash,
		CompanyID: session.CompanyID,
		Scope:     session.Scope,
	}
}

// CallAPI runs fn with a fresh upstream access token for the caller's
// session. Staleness is handled twice: proactively before the call, and
// reactively when Norman rejects a token mid-call, in which case the
// session is refreshed once and fn retried with the new token. A 401 on
// the retried call, or a rejected refresh, ends the session: the caller
// gets ErrSessionExpired and must authenticate again.
func (sc *ServerContext) CallAPI(ctx context.Context, fn func(ctx context.Context, accessToken string) error) error {
	auth, err := sc.Identity(ctx)
	if err != nil {
		return err
	}

	token, err := sc.refresher.Fresh(ctx, auth.SessionID)
	if err != nil {
		return err
	}

	err = fn(ctx, token)
	if !norman.IsUnauthorized(err) {
		return err
	}

	refreshed, rerr := sc.refresher.RefreshIfCurrent(ctx, auth.SessionID, token)
	if rerr != nil {
		sc.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		if errors.Is(rerr, norman.ErrRefreshRejected) {
			return sessionExpiredError(rerr)
		}
		return rerr
	}
	sc.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	err = fn(ctx, refreshed)
	if norman.IsUnauthorized(err) {
		return sessionExpiredError(err)
	}
	return err
}

// sessionExpiredError marks an upstream rejection as terminal for the
// session. The message reaches tool callers verbatim, so it tells them
// what to do next instead of echoing a bare status code.
func sessionExpiredError(cause error) error {
	return fmt.Errorf("%w: please authenticate again (%w)", oauth.ErrSessionExpired, cause)
}

// CompanyID returns the active Norman company for the caller. The company
// is resolved at login when possible; otherwise the first lookup here
// stores it on the session so subsequent calls are free.
func (sc *ServerContext) CompanyID(ctx context.Context) (string, error) {
	auth, err := sc.Identity(ctx)
	if err != nil {
		return "", err
	}
	if auth.CompanyID != "" {
		return auth.CompanyID, nil
	}

	var companyID string
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		id, cerr := sc.companies.FirstCompanyID(ctx, accessToken)
		if cerr != nil {
			return cerr
		}
		companyID = id
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := sc.sessions.SetCompanyID(auth.SessionID, companyID); err == nil {
		auth.CompanyID = companyID
	}
	return companyID, nil
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.shutdown
}

// Shutdown cancels the lifecycle context and stops background goroutines
// owned by this context. Safe to call more than once.
func (sc *ServerContext) Shutdown() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return
	}
	sc.shutdown = true
	sc.cancel()
	if sc.ownsSessions {
		sc.sessions.Stop()
	}
}
