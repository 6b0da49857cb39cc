package oauth

import (
	"net/http"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
)

// serveRevocation implements RFC 7009 token revocation. Revoking either
// half of an MCP token pair deletes the whole session, upstream tokens
// included. Per the RFC, unknown tokens still return 200.
func (h *Handler) serveRevocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, ErrInvalidRequest("malformed revocation request"), 0)
		return
	}

	client, oerr := h.authenticateClient(r)
	if oerr != nil {
		writeError(w, oerr, 0)
		return
	}

	token := r.PostFormValue("token")
	if token == "" {
		writeError(w, ErrInvalidRequest("token is required"), 0)
		return
	}

	session, err := h.store.Get(token)
	if err != nil {
		session, err = h.store.GetByRefreshHandle(token)
	}
	if err == nil && session.ClientID == client.ClientID {
		h.store.Delete(session.ID)
		h.logger.Info("session revoked",
			"client_id", client.ClientID,
			"user", session.UserHash,
			logging.SessionHash(session.ID),
		)
	}

	w.WriteHeader(http.StatusOK)
}
