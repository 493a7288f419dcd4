package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gridforge/gpumesh/internal/engine"
	"github.com/gridforge/gpumesh/internal/models"
	"github.com/gridforge/gpumesh/internal/store"
)

// TasksHandler handles task submission and result endpoints.
type TasksHandler struct {
	engine *engine.Engine
	store  store.Store
	logger *slog.Logger
}

// NewTasksHandler creates a new tasks handler. st may be nil when bookkeeping
// persistence is disabled.
func NewTasksHandler(eng *engine.Engine, st store.Store, logger *slog.Logger) *TasksHandler {
	return &TasksHandler{
		engine: eng,
		store:  st,
		logger: logger,
	}
}

// SubmitTaskRequest is the task submission payload.
type SubmitTaskRequest struct {
	Type         string                  `json:"type"`
	Requirements models.TaskRequirements `json:"requirements"`
}

// Submit handles POST /v1/tasks - submits and schedules a task.
func (h *TasksHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = "compute"
	}

	assignment, err := h.engine.SubmitTask(r.Context(), req.Type, req.Requirements)
	if err != nil {
		WriteEngineError(w, err)
		return
	}

	if h.store != nil {
		if info, ok := h.engine.Task(assignment.TaskID); ok {
			if err := h.store.Tasks().Create(r.Context(), info.Task, assignment.NodeID); err != nil {
				h.logger.Warn("persisting task record failed", "task_id", assignment.TaskID, "error", err)
			}
		}
	}

	WriteJSON(w, http.StatusCreated, assignment)
}

// SubmitResultRequest is the result submission payload.
type SubmitResultRequest struct {
	Success     bool    `json:"success"`
	ComputeTime float64 `json:"compute_time"`
	HashRate    float64 `json:"hash_rate"`
}

// SubmitResult handles POST /v1/tasks/{id}/result - records a task outcome.
func (h *TasksHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		WriteBadRequest(w, "Task ID is required")
		return
	}

	var req SubmitResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	result := models.Result{
		Success:     req.Success,
		ComputeTime: req.ComputeTime,
		HashRate:    req.HashRate,
	}

	if err := h.engine.SubmitResult(r.Context(), taskID, result); err != nil {
		WriteEngineError(w, err)
		return
	}

	if h.store != nil {
		if info, ok := h.engine.Task(taskID); ok && info.Result != nil {
			if err := h.store.Tasks().Complete(r.Context(), taskID, *info.Result); err != nil {
				h.logger.Warn("persisting task result failed", "task_id", taskID, "error", err)
			}
		}
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Get handles GET /v1/tasks/{id} - returns a task snapshot from the engine.
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	info, ok := h.engine.Task(taskID)
	if !ok {
		WriteNotFound(w, "Task not found")
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// ListRecent handles GET /v1/tasks - returns recent task records from the
// bookkeeping store.
func (h *TasksHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "Task history not available")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	records, err := h.store.Tasks().ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing task records failed", "error", err)
		WriteInternalError(w, "Failed to list tasks")
		return
	}
	WriteJSON(w, http.StatusOK, records)
}
