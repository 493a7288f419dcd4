package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gridforge/gpumesh/internal/auth"
	"github.com/gridforge/gpumesh/internal/engine"
	"github.com/gridforge/gpumesh/internal/models"
	"github.com/gridforge/gpumesh/internal/store"
	"github.com/gridforge/gpumesh/pkg/config"
)

// memoryStore is an in-memory store.Store for handler testing.
type memoryStore struct {
	mu      sync.Mutex
	devices map[string]models.NodeInfo
	tasks   []*store.TaskRecord
	stats   []models.NetworkStats
}

func newMemoryStore() *memoryStore {
	return &memoryStore{devices: make(map[string]models.NodeInfo)}
}

func (m *memoryStore) Devices() store.DeviceStore { return (*memoryDevices)(m) }
func (m *memoryStore) Tasks() store.TaskStore     { return (*memoryTasks)(m) }
func (m *memoryStore) Stats() store.StatsStore    { return (*memoryStats)(m) }
func (m *memoryStore) Close() error               { return nil }

type memoryDevices memoryStore

func (m *memoryDevices) Upsert(ctx context.Context, device models.NodeInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device.ID] = device
	return nil
}

func (m *memoryDevices) Get(ctx context.Context, id string) (*models.NodeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *memoryDevices) List(ctx context.Context) ([]*models.NodeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.NodeInfo, 0, len(m.devices))
	for _, d := range m.devices {
		copied := d
		out = append(out, &copied)
	}
	return out, nil
}

type memoryTasks memoryStore

func (m *memoryTasks) Create(ctx context.Context, task models.Task, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, &store.TaskRecord{
		ID:          task.ID,
		Type:        task.Type,
		MinVRAMGB:   task.Requirements.MinVRAMGB,
		MinHashRate: task.Requirements.MinHashRate,
		NodeID:      nodeID,
		Status:      string(models.TaskStatusAssigned),
		CreatedAt:   task.CreatedAt,
	})
	return nil
}

func (m *memoryTasks) Complete(ctx context.Context, taskID string, result models.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tasks {
		if rec.ID == taskID {
			rec.Status = string(models.TaskStatusCompleted)
			rec.Success = result.Success
			rec.ComputeTime = result.ComputeTime
			rec.HashRate = result.HashRate
			return nil
		}
	}
	return fmt.Errorf("task %s not found", taskID)
}

func (m *memoryTasks) Get(ctx context.Context, taskID string) (*store.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tasks {
		if rec.ID == taskID {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryTasks) ListRecent(ctx context.Context, limit int) ([]*store.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.TaskRecord, 0, len(m.tasks))
	for i := len(m.tasks) - 1; i >= 0 && len(out) < limit; i-- {
		copied := *m.tasks[i]
		out = append(out, &copied)
	}
	return out, nil
}

type memoryStats memoryStore

func (m *memoryStats) Append(ctx context.Context, stats models.NetworkStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, stats)
	return nil
}

func (m *memoryStats) Latest(ctx context.Context) (*models.NetworkStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stats) == 0 {
		return nil, nil
	}
	latest := m.stats[len(m.stats)-1]
	return &latest, nil
}

type testServer struct {
	server *Server
	store  *memoryStore
	auth   *auth.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.LoadWithDefaults()
	cfg.Network = config.DefaultNetworkConfig()

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: time.Hour,
	}, discard)

	eng := engine.New(cfg.Network, nil, nil, discard)
	st := newMemoryStore()

	return &testServer{
		server: NewServer(cfg, eng, st, nil, authService, discard),
		store:  st,
		auth:   authService,
	}
}

// do issues a request against the router with a Bearer token for wallet.
func (ts *testServer) do(t *testing.T, method, path, wallet string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if wallet != "" {
		token, err := ts.auth.GenerateToken(wallet)
		if err != nil {
			t.Fatalf("generating token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func registerNode(t *testing.T, ts *testServer, wallet string, vram, hashRate float64) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/nodes", wallet, map[string]any{
		"gpu_model": "RTX 4090",
		"vram_gb":   vram,
		"hash_rate": hashRate,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("registering %s: status %d, body %s", wallet, rec.Code, rec.Body.String())
	}
}

func TestHealthNoAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/nodes"},
		{http.MethodPost, "/v1/nodes"},
		{http.MethodGet, "/v1/stats"},
		{http.MethodPost, "/v1/tasks"},
		{http.MethodGet, "/v1/partitions"},
	}

	for _, p := range paths {
		rec := ts.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestAuthRejectsGarbageToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRegisterNode(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/nodes", "wallet-1", map[string]any{
		"gpu_model": "RTX 4090",
		"vram_gb":   24.0,
		"hash_rate": 120.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	info := decodeBody[models.NodeInfo](t, rec)
	if info.ID != "wallet-1" {
		t.Errorf("node id = %q, want wallet-1", info.ID)
	}
	if info.PartitionID != models.DefaultPartition {
		t.Errorf("partition = %q, want %q", info.PartitionID, models.DefaultPartition)
	}

	// The device record lands in the bookkeeping store.
	dev, err := ts.store.Devices().Get(context.Background(), "wallet-1")
	if err != nil || dev == nil {
		t.Fatalf("device record not persisted: %v", err)
	}
}

func TestRegisterNodeInsufficientSpecs(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/nodes", "wallet-1", map[string]any{
		"gpu_model": "GTX 1050",
		"vram_gb":   4.0,
		"hash_rate": 30.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}

	apiErr := decodeBody[map[string]any](t, rec)
	if apiErr["code"] != "insufficient_specs" {
		t.Errorf("error code = %v, want insufficient_specs", apiErr["code"])
	}
}

func TestGetNodeNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/nodes/missing", "wallet-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHeartbeat(t *testing.T) {
	ts := newTestServer(t)
	registerNode(t, ts, "wallet-1", 24, 120)

	rec := ts.do(t, http.MethodPost, "/v1/nodes/wallet-1/heartbeat", "wallet-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/nodes/unknown/heartbeat", "wallet-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown node heartbeat: status = %d, want 404", rec.Code)
	}
}

func TestSubmitTaskLifecycle(t *testing.T) {
	ts := newTestServer(t)
	registerNode(t, ts, "wallet-1", 24, 120)

	rec := ts.do(t, http.MethodPost, "/v1/tasks", "client-1", map[string]any{
		"type": "render",
		"requirements": map[string]any{
			"min_vram_gb":   16.0,
			"min_hash_rate": 100.0,
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: status = %d, body %s", rec.Code, rec.Body.String())
	}

	assignment := decodeBody[models.Assignment](t, rec)
	if assignment.NodeID != "wallet-1" {
		t.Errorf("assigned node = %q, want wallet-1", assignment.NodeID)
	}

	rec = ts.do(t, http.MethodGet, "/v1/tasks/"+assignment.TaskID, "client-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get task: status = %d", rec.Code)
	}
	info := decodeBody[models.TaskInfo](t, rec)
	if info.Status != models.TaskStatusAssigned {
		t.Errorf("task status = %q, want assigned", info.Status)
	}

	rec = ts.do(t, http.MethodPost, "/v1/tasks/"+assignment.TaskID+"/result", "wallet-1", map[string]any{
		"success":      true,
		"compute_time": 12.5,
		"hash_rate":    118.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("result: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Completed tasks show up in the bookkeeping history.
	rec = ts.do(t, http.MethodGet, "/v1/tasks?limit=10", "client-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	records := decodeBody[[]store.TaskRecord](t, rec)
	if len(records) != 1 {
		t.Fatalf("history length = %d, want 1", len(records))
	}
	if records[0].Status != string(models.TaskStatusCompleted) || !records[0].Success {
		t.Errorf("history record = %+v, want completed success", records[0])
	}
}

func TestSubmitTaskNoCapacity(t *testing.T) {
	ts := newTestServer(t)
	registerNode(t, ts, "wallet-1", 10, 60)

	rec := ts.do(t, http.MethodPost, "/v1/tasks", "client-1", map[string]any{
		"requirements": map[string]any{
			"min_vram_gb":   32.0,
			"min_hash_rate": 200.0,
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}

	apiErr := decodeBody[map[string]any](t, rec)
	if apiErr["code"] != "no_suitable_node" {
		t.Errorf("error code = %v, want no_suitable_node", apiErr["code"])
	}
}

func TestSubmitTaskInvalidRequirements(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/tasks", "client-1", map[string]any{
		"requirements": map[string]any{
			"min_vram_gb":   2.0,
			"min_hash_rate": 10.0,
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitResultConflicts(t *testing.T) {
	ts := newTestServer(t)
	registerNode(t, ts, "wallet-1", 24, 120)

	rec := ts.do(t, http.MethodPost, "/v1/tasks/unknown/result", "wallet-1", map[string]any{
		"success": true,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown task: status = %d, want 404", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/v1/tasks", "client-1", map[string]any{
		"requirements": map[string]any{"min_vram_gb": 16.0, "min_hash_rate": 100.0},
	})
	assignment := decodeBody[models.Assignment](t, rec)

	for i, want := range []int{http.StatusOK, http.StatusConflict} {
		rec = ts.do(t, http.MethodPost, "/v1/tasks/"+assignment.TaskID+"/result", "wallet-1", map[string]any{
			"success": true,
		})
		if rec.Code != want {
			t.Fatalf("result submission %d: status = %d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	registerNode(t, ts, "wallet-1", 24, 120)
	registerNode(t, ts, "wallet-2", 16, 90)

	rec := ts.do(t, http.MethodGet, "/v1/stats", "client-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	stats := decodeBody[models.NetworkStats](t, rec)
	if stats.TotalNodes != 2 {
		t.Errorf("total nodes = %d, want 2", stats.TotalNodes)
	}
	if stats.NetworkEfficiency != 85 {
		t.Errorf("efficiency = %v, want 85 with no results", stats.NetworkEfficiency)
	}
}

func TestPartitionsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	registerNode(t, ts, "wallet-1", 24, 120)

	rec := ts.do(t, http.MethodGet, "/v1/partitions", "client-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	partitions := decodeBody[map[string][]string](t, rec)
	members, ok := partitions[models.DefaultPartition]
	if !ok || len(members) != 1 || members[0] != "wallet-1" {
		t.Errorf("partitions = %v, want wallet-1 in %q", partitions, models.DefaultPartition)
	}
}

func TestStatsStreamUnavailableWithoutHub(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/stats/stream", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
