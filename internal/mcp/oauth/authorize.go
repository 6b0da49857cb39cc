package oauth

import (
	"net/http"
	"net/url"
	"time"
)

// serveAuthorization handles GET /oauth/authorize: validate the request,
// persist a pending authorization, and send the user to the login form.
// Requests with an invalid client or redirect URI fail with a direct 400
// and create no state; per RFC 6749 the server must never redirect to an
// unvalidated URI.
func (h *Handler) serveAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		return
	}
	setSecurityHeaders(w, h.isHTTPS)

	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")

	client, ok := h.clientStore.Get(clientID)
	if !ok {
		writeError(w, ErrInvalidRequest("unknown client_id"), http.StatusBadRequest)
		return
	}
	if oerr := h.validateRedirectURI(redirectURI); oerr != nil {
		writeError(w, oerr, http.StatusBadRequest)
		return
	}
	if !client.HasRedirectURI(redirectURI) {
		writeError(w, ErrInvalidRedirectURI("redirect_uri not registered for this client"), http.StatusBadRequest)
		return
	}

	// The redirect URI is now trusted; remaining errors go back to the
	// client via redirect per RFC 6749 section 4.1.2.1.
	clientState := q.Get("state")

	if rt := q.Get("response_type"); rt != "code" {
		h.redirectError(w, r, redirectURI, clientState, ErrUnsupportedResponseType("only response_type=code is supported"))
		return
	}
	challenge := q.Get("code_challenge")
	challengeMethod := q.Get("code_challenge_method")
	if oerr := validateCodeChallenge(challenge, challengeMethod); oerr != nil {
		h.redirectError(w, r, redirectURI, clientState, oerr)
		return
	}
	if challengeMethod == "" {
		challengeMethod = "S256"
	}

	stateToken, err := generateSecureToken(StateTokenLength)
	if err != nil {
		h.redirectError(w, r, redirectURI, clientState, ErrServerError("failed to start authorization"))
		return
	}

	now := time.Now()
	h.flowStore.PutPending(stateToken, &PendingAuthorization{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               q.Get("scope"),
		State:               clientState,
		CodeChallenge:       challenge,
		CodeChallengeMethod: challengeMethod,
		Resource:            q.Get("resource"),
		CreatedAt:           now,
		ExpiresAt:           now.Add(h.config.PendingAuthorizationTTL),
	})

	h.logger.Debug("authorization flow started", "client_id", clientID)
	http.Redirect(w, r, "/oauth/login?state="+url.QueryEscape(stateToken), http.StatusFound)
}

// redirectError sends a protocol error back to the client's validated
// redirect URI.
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state string, oerr *OAuthError) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		writeError(w, oerr, 0)
		return
	}
	q := target.Query()
	q.Set("error", oerr.Code)
	if oerr.Description != "" {
		q.Set("error_description", oerr.Description)
	}
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// serveToken handles POST /oauth/token for the authorization_code and
// refresh_token grants.
func (h *Handler) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		return
	}
	setTokenResponseHeaders(w)

	if err := r.ParseForm(); err != nil {
		writeError(w, ErrInvalidRequest("malformed token request"), 0)
		return
	}

	client, oerr := h.authenticateClient(r)
	if oerr != nil {
		if oerr.Status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth-token"`)
		}
		writeError(w, oerr, 0)
		return
	}

	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		h.handleCodeGrant(w, r, client)
	case "refresh_token":
		h.handleRefreshGrant(w, r, client)
	default:
		writeError(w, ErrUnsupportedGrantType("supported grant types: authorization_code, refresh_token"), 0)
	}
}

func (h *Handler) handleCodeGrant(w http.ResponseWriter, r *http.Request, client *RegisteredClient) {
	code := r.PostFormValue("code")
	if code == "" {
		writeError(w, ErrInvalidRequest("code is required"), 0)
		return
	}

	authCode, ok := h.flowStore.ConsumeCode(code)
	if !ok {
		writeError(w, ErrInvalidGrant("authorization code is invalid or expired"), 0)
		return
	}

	// The code is consumed at this point: any failure below permanently
	// invalidates it, and the session it references is revoked so a
	// stolen code cannot be replayed with different parameters.
	fail := func(oerr *OAuthError) {
		h.store.Delete(authCode.SessionID)
		writeError(w, oerr, 0)
	}

	if authCode.ClientID != client.ClientID {
		fail(ErrInvalidGrant("authorization code was issued to a different client"))
		return
	}
	if redirectURI := r.PostFormValue("redirect_uri"); redirectURI != authCode.RedirectURI {
		fail(ErrInvalidGrant("redirect_uri does not match the authorization request"))
		return
	}
	if oerr := validatePKCE(r.PostFormValue("code_verifier"), authCode.CodeChallenge, authCode.CodeChallengeMethod); oerr != nil {
		fail(oerr)
		return
	}

	session, err := h.store.Get(authCode.SessionID)
	if err != nil {
		writeError(w, ErrInvalidGrant("session no longer exists"), 0)
		return
	}

	h.logger.Info("authorization code redeemed",
		"client_id", client.ClientID,
		"user", session.UserHash,
	)
	h.writeTokenResponse(w, session)
}

func (h *Handler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, client *RegisteredClient) {
	handle := r.PostFormValue("refresh_token")
	if handle == "" {
		writeError(w, ErrInvalidRequest("refresh_token is required"), 0)
		return
	}

	session, err := h.store.GetByRefreshHandle(handle)
	if err != nil {
		writeError(w, ErrInvalidGrant("refresh token is invalid or expired"), 0)
		return
	}
	if session.ClientID != client.ClientID {
		writeError(w, ErrInvalidGrant("refresh token was issued to a different client"), 0)
		return
	}

	now := time.Now()
	newAccess, err := newAccessToken()
	if err != nil {
		writeError(w, ErrServerError("failed to mint access token"), 0)
		return
	}

	newHandle := session.RefreshHandle
	refreshExpiry := session.RefreshExpiresAt
	if !h.config.Security.DisableRefreshTokenRotation {
		newHandle, err = newRefreshHandle()
		if err != nil {
			writeError(w, ErrServerError("failed to mint refresh token"), 0)
			return
		}
		refreshExpiry = now.Add(h.config.RefreshTokenTTL)
	}

	rotated, err := h.store.Rotate(session.ID, newAccess, newHandle, now.Add(h.config.AccessTokenTTL), refreshExpiry)
	if err != nil {
		writeError(w, ErrInvalidGrant("session no longer exists"), 0)
		return
	}

	h.logger.Info("mcp token refreshed",
		"client_id", client.ClientID,
		"user", rotated.UserHash,
	)
	h.writeTokenResponse(w, rotated)
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, session *Session) {
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  session.ID,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(session.ExpiresAt).Seconds()),
		RefreshToken: session.RefreshHandle,
		Scope:        session.Scope,
	})
}
