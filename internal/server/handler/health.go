package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/trailbot/internal/actor"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	registry *actor.Registry
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(registry *actor.Registry, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{registry: registry, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is
// alive and how many pair actors are warm.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"actors":    h.registry.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
