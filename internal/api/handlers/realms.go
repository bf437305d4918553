package handlers

import (
	"context"
	"net/http"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/api/middleware"
	"github.com/fzdarsky/realmgate/internal/logging"
)

// RealmLister returns the configured realms.
type RealmLister interface {
	Realms(ctx context.Context) ([]account.Realm, error)
}

// RealmsHandler handles GET /realms.
type RealmsHandler struct {
	realms RealmLister
	logger *logging.Logger
}

// NewRealmsHandler creates a handler listing realms from the directory.
func NewRealmsHandler(realms RealmLister, logger *logging.Logger) *RealmsHandler {
	return &RealmsHandler{realms: realms, logger: logger}
}

// ServeHTTP returns every realm as a JSON array, including realms that only
// higher security levels can see.
func (h *RealmsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	realms, err := h.realms.Realms(r.Context())
	if err != nil {
		h.logger.Error("failed to list realms", map[string]any{"error": err.Error()})
		middleware.WriteJSONError(w, http.StatusServiceUnavailable, middleware.ErrCodeUnavailable, "failed to list realms")
		return
	}
	if realms == nil {
		realms = []account.Realm{}
	}

	middleware.WriteJSON(w, realms, http.StatusOK)
}
