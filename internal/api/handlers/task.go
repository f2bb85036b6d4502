// Package handlers implements the admin HTTP API's request handlers:
// submitting tasks, polling a handle's outcome, cancelling pending work,
// and reporting pool/worker status.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/pool"
)

// createTaskRequest is the submission payload accepted by Create.
type createTaskRequest struct {
	Type   string                 `json:"type"`
	Args   []interface{}          `json:"args,omitempty"`
	Kwargs map[string]interface{} `json:"kwargs,omitempty"`
}

// TaskHandler serves /api/v1/tasks endpoints backed directly by a Pool.
type TaskHandler struct {
	pool *pool.Pool
}

func NewTaskHandler(p *pool.Pool) *TaskHandler {
	return &TaskHandler{pool: p}
}

// Create handles POST /api/v1/tasks: submit work and return its handle
// ID immediately — this endpoint never blocks waiting for a result. The
// outcome arrives on the WebSocket feed; Get only finds a task while the
// pool still tracks it, and the pool drops it as soon as it finishes.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		h.respondError(w, http.StatusBadRequest, "task type is required")
		return
	}

	handle, err := h.pool.Submit(req.Type, req.Args, req.Kwargs)
	if err != nil {
		status := http.StatusInternalServerError
		if err == pool.ErrPoolClosed {
			status = http.StatusServiceUnavailable
		}
		h.respondError(w, status, err.Error())
		return
	}

	logger.Info().Str("task_id", handle.ID()).Str("type", req.Type).Msg("task submitted")
	h.respondJSON(w, http.StatusCreated, handleResponse(handle))
}

// Get handles GET /api/v1/tasks/{taskID}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	handle, ok := h.pool.Handle(taskID)
	if !ok {
		h.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	h.respondJSON(w, http.StatusOK, handleResponse(handle))
}

// Cancel handles DELETE /api/v1/tasks/{taskID}. Only a task still
// waiting in the pending queue can be cancelled this way — one already
// handed to a worker runs to completion or to its timeout.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	handle, ok := h.pool.Handle(taskID)
	if !ok {
		h.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	if !handle.Cancel() {
		h.respondError(w, http.StatusConflict, "task cannot be cancelled in its current state")
		return
	}
	logger.Info().Str("task_id", taskID).Msg("task cancelled")
	h.respondJSON(w, http.StatusOK, handleResponse(handle))
}

type handleView struct {
	ID    string      `json:"id"`
	State string      `json:"state"`
	Value interface{} `json:"value,omitempty"`
	Err   string      `json:"err,omitempty"`
	Logs  string      `json:"logs,omitempty"`
}

func handleResponse(h *pool.Handle) handleView {
	v := handleView{ID: h.ID(), State: h.State().String()}
	if h.Done() {
		v.Logs = h.Logs()
		if err := h.Err(); err != nil {
			v.Err = err.Error()
		} else {
			v.Value = h.Value()
		}
	}
	return v
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Get().Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: http.StatusText(status), Message: message})
}
