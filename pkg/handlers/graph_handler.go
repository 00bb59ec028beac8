package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/auth"
	"github.com/lorekeep/lorekeep-engine/pkg/services"
)

// GraphHandler handles knowledge-graph rebuild requests.
type GraphHandler struct {
	ingestService services.IngestService
	logger        *zap.Logger
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(ingestService services.IngestService, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		ingestService: ingestService,
		logger:        logger,
	}
}

// RegisterRoutes registers the graph handler's routes on the given mux.
func (h *GraphHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/graph/rebuild", authMiddleware.RequireAuth(h.Rebuild))
}

// Rebuild handles POST /api/graph/rebuild. The batch result carries one
// entry per note; failed notes report their error alongside their
// successful siblings.
func (h *GraphHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerIDFromContext(r.Context())
	if err != nil {
		serviceError(w, h.logger, "unauthorized", err)
		return
	}

	results, err := h.ingestService.RebuildFromNotes(r.Context(), ownerID)
	if err != nil {
		serviceError(w, h.logger, "graph_rebuild_failed", err)
		return
	}
	if results == nil {
		results = make([]*services.NoteIngestResult, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: results}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
