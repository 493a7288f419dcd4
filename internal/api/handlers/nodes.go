package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridforge/gpumesh/internal/api/middleware"
	"github.com/gridforge/gpumesh/internal/engine"
	"github.com/gridforge/gpumesh/internal/models"
	"github.com/gridforge/gpumesh/internal/store"
)

// NodesHandler handles device registration and node inspection endpoints.
type NodesHandler struct {
	engine *engine.Engine
	store  store.Store
	logger *slog.Logger
}

// NewNodesHandler creates a new nodes handler. st may be nil when bookkeeping
// persistence is disabled.
func NewNodesHandler(eng *engine.Engine, st store.Store, logger *slog.Logger) *NodesHandler {
	return &NodesHandler{
		engine: eng,
		store:  st,
		logger: logger,
	}
}

// RegisterRequest is the device registration payload.
type RegisterRequest struct {
	GPUModel string  `json:"gpu_model"`
	VRAMGB   float64 `json:"vram_gb"`
	HashRate float64 `json:"hash_rate"`
}

// Register handles POST /v1/nodes - registers the caller's device.
// The node identity is the authenticated wallet address.
func (h *NodesHandler) Register(w http.ResponseWriter, r *http.Request) {
	wallet := middleware.GetWallet(r.Context())
	if wallet == "" {
		WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Wallet context required")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	specs := models.GPUSpecs{
		GPUModel: req.GPUModel,
		VRAMGB:   req.VRAMGB,
		HashRate: req.HashRate,
	}

	if err := h.engine.RegisterNode(r.Context(), wallet, specs); err != nil {
		WriteEngineError(w, err)
		return
	}

	info, _ := h.engine.Node(wallet)
	h.persistDevice(r, info)

	WriteJSON(w, http.StatusCreated, info)
}

// Heartbeat handles POST /v1/nodes/{id}/heartbeat - records a liveness signal.
func (h *NodesHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "id")
	if nodeID == "" {
		WriteBadRequest(w, "Node ID is required")
		return
	}

	if err := h.engine.Heartbeat(nodeID); err != nil {
		WriteEngineError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// List handles GET /v1/nodes - returns all registered nodes.
func (h *NodesHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.engine.Nodes())
}

// Get handles GET /v1/nodes/{id} - returns one node snapshot.
func (h *NodesHandler) Get(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "id")

	info, ok := h.engine.Node(nodeID)
	if !ok {
		WriteNotFound(w, "Node not found")
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// Partitions handles GET /v1/partitions - returns the partition table.
func (h *NodesHandler) Partitions(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.engine.Partitions())
}

// persistDevice writes the device record; best-effort bookkeeping only.
func (h *NodesHandler) persistDevice(r *http.Request, info models.NodeInfo) {
	if h.store == nil {
		return
	}
	if err := h.store.Devices().Upsert(r.Context(), info); err != nil {
		h.logger.Warn("persisting device record failed", "node_id", info.ID, "error", err)
	}
}
