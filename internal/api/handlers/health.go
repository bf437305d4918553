// Package handlers implements the operations API endpoints.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/fzdarsky/realmgate/internal/api/middleware"
)

// HealthChecker reports whether a backend is reachable.
type HealthChecker interface {
	Healthcheck(ctx context.Context) error
}

// healthTimeout bounds a single probe of the account store.
const healthTimeout = 2 * time.Second

// HealthHandler handles GET /healthz.
type HealthHandler struct {
	store HealthChecker
}

// NewHealthHandler creates a handler probing store.
func NewHealthHandler(store HealthChecker) *HealthHandler {
	return &HealthHandler{store: store}
}

// ServeHTTP answers 200 when the account store responds and 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Healthcheck(ctx); err != nil {
		middleware.WriteJSONError(w, http.StatusServiceUnavailable, middleware.ErrCodeUnavailable,
			"account store unavailable: "+err.Error())
		return
	}

	middleware.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
