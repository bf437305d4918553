package handlers

import (
	"net/http"

	"github.com/fzdarsky/realmgate/internal/api/middleware"
	"github.com/fzdarsky/realmgate/internal/server"
)

// SessionLister returns the open client connections.
type SessionLister interface {
	Snapshot() []server.SessionInfo
}

// SessionsHandler handles GET /sessions.
type SessionsHandler struct {
	sessions SessionLister
}

// NewSessionsHandler creates a handler listing open sessions.
func NewSessionsHandler(sessions SessionLister) *SessionsHandler {
	return &SessionsHandler{sessions: sessions}
}

type sessionsResponse struct {
	Count    int                  `json:"count"`
	Sessions []server.SessionInfo `json:"sessions"`
}

// ServeHTTP returns the current session table.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	sessions := h.sessions.Snapshot()
	if sessions == nil {
		sessions = []server.SessionInfo{}
	}

	middleware.WriteJSON(w, sessionsResponse{Count: len(sessions), Sessions: sessions}, http.StatusOK)
}
