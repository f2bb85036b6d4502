package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/pool"
)

// AdminHandler serves read-only status endpoints describing the pool's
// own health: its lifecycle state and the live worker processes behind it.
type AdminHandler struct {
	pool *pool.Pool
}

func NewAdminHandler(p *pool.Pool) *AdminHandler {
	return &AdminHandler{pool: p}
}

// Status handles GET /admin/status.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":   h.pool.State().String(),
		"workers": h.pool.WorkerCount(),
	})
}

// ListWorkers handles GET /admin/workers.
func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workers": h.pool.WorkerSnapshots(),
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Get().Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: http.StatusText(status), Message: message})
}
