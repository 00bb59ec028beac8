package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/database"
)

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	db      *database.DB
	version string
	logger  *zap.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *database.DB, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		version: version,
		logger:  logger,
	}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":   "ok",
		"version":  h.version,
		"database": "ok",
	}
	code := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("Health check database ping failed", zap.Error(err))
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}

	if err := WriteJSON(w, code, status); err != nil {
		h.logger.Error("Failed to write health response", zap.Error(err))
	}
}
