package oauth

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
)

const loginPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sign in to Norman</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; background: #f5f5f7; margin: 0;
       display: flex; justify-content: center; align-items: center; min-height: 100vh; }
.card { background: #fff; border-radius: 12px; box-shadow: 0 2px 12px rgba(0,0,0,.08);
        padding: 2.5rem; width: 100%; max-width: 380px; }
h1 { font-size: 1.25rem; margin: 0 0 .5rem; }
p.sub { color: #6e6e73; font-size: .875rem; margin: 0 0 1.5rem; }
label { display: block; font-size: .8125rem; font-weight: 600; margin-bottom: .25rem; }
input { width: 100%; box-sizing: border-box; padding: .625rem; margin-bottom: 1rem;
        border: 1px solid #d2d2d7; border-radius: 8px; font-size: .9375rem; }
button { width: 100%; padding: .625rem; border: 0; border-radius: 8px; background: #1d1d1f;
         color: #fff; font-size: .9375rem; cursor: pointer; }
.error { background: #fdecea; color: #b3261e; border-radius: 8px; padding: .625rem .75rem;
         font-size: .8125rem; margin-bottom: 1rem; }
</style>
</head>
<body>
<div class="card">
<h1>Sign in to Norman</h1>
<p class="sub">{{if .ClientName}}{{.ClientName}} is requesting access to your Norman account.{{else}}An application is requesting access to your Norman account.{{end}}</p>
{{if .Error}}<div class="error">{{.Error}}</div>{{end}}
<form method="post" action="/oauth/login">
<input type="hidden" name="state" value="{{.State}}">
<label for="email">Email</label>
<input type="email" id="email" name="email" value="{{.Email}}" required autofocus>
<label for="password">Password</label>
<input type="password" id="password" name="password" required>
<button type="submit">Sign in</button>
</form>
</div>
</body>
</html>`

// loginPageData feeds the login form template.
type loginPageData struct {
	State      string
	ClientName string
	Email      string
	Error      string
}

// LoginPresenter renders the credential form served at /oauth/login.
type LoginPresenter struct {
	tmpl *template.Template
}

// NewLoginPresenter parses the embedded login page template.
func NewLoginPresenter() *LoginPresenter {
	return &LoginPresenter{tmpl: template.Must(template.New("login").Parse(loginPageHTML))}
}

// Render writes the login form.
func (p *LoginPresenter) Render(w http.ResponseWriter, status int, data loginPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = p.tmpl.Execute(w, data)
}

// serveLogin handles the credential form. GET renders it for a pending
// authorization; POST checks the credentials against Norman and completes
// the flow.
func (h *Handler) serveLogin(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w, h.isHTTPS)

	switch r.Method {
	case http.MethodGet:
		h.renderLoginForm(w, r)
	case http.MethodPost:
		h.completeLogin(w, r)
	default:
		writeError(w, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
	}
}

func (h *Handler) renderLoginForm(w http.ResponseWriter, r *http.Request) {
	stateToken := r.URL.Query().Get("state")
	pending, ok := h.flowStore.GetPending(stateToken)
	if !ok {
		writeError(w, ErrInvalidRequest("login session is invalid or expired, restart the authorization flow"), 0)
		return
	}
	h.presenter.Render(w, http.StatusOK, loginPageData{
		State:      stateToken,
		ClientName: h.clientName(pending.ClientID),
	})
}

func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, ErrInvalidRequest("malformed login request"), 0)
		return
	}

	stateToken := r.PostFormValue("state")
	pending, ok := h.flowStore.GetPending(stateToken)
	if !ok {
		// Unknown or expired state: fail hard, never redirect. A forged
		// state must not receive a code.
		writeError(w, ErrInvalidRequest("login session is invalid or expired, restart the authorization flow"), 0)
		return
	}

	creds := norman.Credentials{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	rerender := func(status int, message string) {
		h.presenter.Render(w, status, loginPageData{
			State:      stateToken,
			ClientName: h.clientName(pending.ClientID),
			Email:      creds.Email,
			Error:      message,
		})
	}

	if !creds.Valid() {
		rerender(http.StatusBadRequest, "Email and password are required.")
		return
	}

	session, err := h.issueSession(r, pending, creds)
	switch {
	case err == nil:
		// fall through to code minting
	case errors.Is(err, norman.ErrInvalidCredentials):
		h.logger.Info("login rejected", logging.UserHash(creds.Email))
		rerender(http.StatusUnauthorized, "Invalid email or password. Please try again.")
		return
	case errors.Is(err, norman.ErrUpstreamUnavailable):
		h.logger.Warn("login blocked, upstream unavailable", logging.Err(err))
		rerender(http.StatusServiceUnavailable, "Norman is temporarily unavailable. Please try again shortly.")
		return
	default:
		h.logger.Error("login failed", logging.Err(err))
		writeError(w, ErrServerError("login failed"), 0)
		return
	}

	code, err := generateSecureToken(AuthorizationCodeLength)
	if err != nil {
		h.store.Delete(session.ID)
		writeError(w, ErrServerError("failed to mint authorization code"), 0)
		return
	}

	now := time.Now()
	h.flowStore.PutCode(&AuthorizationCode{
		Code:                code,
		ClientID:            pending.ClientID,
		RedirectURI:         pending.RedirectURI,
		Scope:               pending.Scope,
		CodeChallenge:       pending.CodeChallenge,
		CodeChallengeMethod: pending.CodeChallengeMethod,
		SessionID:           session.ID,
		CreatedAt:           now,
		ExpiresAt:           now.Add(h.config.AuthorizationCodeTTL),
	})
	h.flowStore.DeletePending(stateToken)

	target, err := url.Parse(pending.RedirectURI)
	if err != nil {
		// Registered and validated earlier, should not happen.
		writeError(w, ErrServerError("invalid redirect target"), 0)
		return
	}
	q := target.Query()
	q.Set("code", code)
	if pending.State != "" {
		q.Set("state", pending.State)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *Handler) clientName(clientID string) string {
	if client, ok := h.clientStore.Get(clientID); ok {
		return client.ClientName
	}
	return ""
}
