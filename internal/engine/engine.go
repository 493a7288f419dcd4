// Package engine implements the in-memory coordination engine for the GPU
// compute network: node registry, task scheduling, heartbeat-based failure
// detection, partition management, and topology optimization.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gridforge/gpumesh/internal/models"
	"github.com/gridforge/gpumesh/pkg/config"
)

// Common errors returned by engine operations.
var (
	// ErrInsufficientSpecs rejects devices below the registration spec floor.
	ErrInsufficientSpecs = errors.New("device specs below network minimum")
	// ErrInvalidTaskRequirements rejects task requirements below the spec floor.
	ErrInvalidTaskRequirements = errors.New("task requirements below network minimum")
	// ErrNoSuitableNode means no registered node satisfies the task requirements.
	ErrNoSuitableNode = errors.New("no suitable node for task")
	// ErrTaskNotFound means the task id is unknown.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotAssigned means the task has no active assignment.
	ErrNotAssigned = errors.New("task has no active assignment")
	// ErrNodeNotFound means the node id is unknown.
	ErrNodeNotFound = errors.New("node not found")
)

// ChainClient is the narrow contract for the chain-program collaborator.
// All calls are best-effort relative to in-memory state: failures are logged
// by the engine, never propagated to the triggering operation.
type ChainClient interface {
	RegisterDevice(ctx context.Context, ownerID string, specs models.GPUSpecs) (string, error)
	SubmitTask(ctx context.Context, ownerID, taskType string, req models.TaskRequirements) (string, error)
	SubmitProof(ctx context.Context, proof models.ProofRecord) (string, error)
}

// StatsSink receives the derived network stats snapshot after each recompute.
// One-way push; no acknowledgement is awaited.
type StatsSink interface {
	PublishStats(stats models.NetworkStats)
}

// node is the authoritative registry entry for one compute device.
// All fields are guarded by the engine mutex.
type node struct {
	id            string
	specs         models.GPUSpecs
	partitionID   string
	peers         map[string]struct{}
	load          float64
	lastHeartbeat time.Time
	registeredAt  time.Time
}

// assignment binds a task to a node. seq is assigned once at first assignment
// and preserved across redistribution so oldest-first ordering stays stable.
type assignment struct {
	taskID     string
	nodeID     string
	assignedAt time.Time
	seq        uint64
}

// Engine owns the shared coordination state. A single mutex guards the node,
// task, assignment, and partition maps; invariants such as peer symmetry and
// partition exclusivity span multiple maps, so there is no finer locking.
// Collaborator calls always run outside the lock.
type Engine struct {
	cfg    config.NetworkConfig
	chain  ChainClient
	sink   StatsSink
	logger *slog.Logger

	mu          sync.Mutex
	nodes       map[string]*node
	nodeOrder   []string
	tasks       map[string]*models.Task
	assignments map[string]*assignment
	results     map[string]*models.Result
	partitions  map[string]map[string]struct{}
	assignSeq   uint64
	stats       models.NetworkStats

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a coordination engine. chain and sink may be nil, in which case
// the corresponding side effects are skipped.
func New(cfg config.NetworkConfig, chain ChainClient, sink StatsSink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:         cfg,
		chain:       chain,
		sink:        sink,
		logger:      logger,
		nodes:       make(map[string]*node),
		tasks:       make(map[string]*models.Task),
		assignments: make(map[string]*assignment),
		results:     make(map[string]*models.Result),
		partitions:  make(map[string]map[string]struct{}),
		stopChan:    make(chan struct{}),
	}
	e.partitions[models.DefaultPartition] = make(map[string]struct{})
	e.recomputeStatsLocked()
	return e
}

// Start launches the periodic heartbeat and topology tick.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.tickLoop(ctx)
}

// Stop stops the background tick and waits for it to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()
}

// tickLoop drives the failure detector and topology manager on a fixed period.
func (e *Engine) tickLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("coordination tick stopped by context")
			return
		case <-e.stopChan:
			e.logger.Info("coordination tick stopped")
			return
		case <-ticker.C:
			e.CheckHeartbeats()
			e.OptimizeTopology()
			e.pruneCompletedTasks()
		}
	}
}

// pruneCompletedTasks evicts completed tasks and their results once they are
// older than the configured retention. Retention 0 keeps history forever.
func (e *Engine) pruneCompletedTasks() {
	if e.cfg.TaskRetention <= 0 {
		return
	}

	cutoff := time.Now().Add(-e.cfg.TaskRetention)
	var pruned int

	e.mu.Lock()
	for id, task := range e.tasks {
		if task.CompletedAt.IsZero() || task.CompletedAt.After(cutoff) {
			continue
		}
		delete(e.tasks, id)
		delete(e.results, id)
		pruned++
	}
	e.mu.Unlock()

	if pruned > 0 {
		e.logger.Info("pruned completed tasks", "count", pruned, "retention", e.cfg.TaskRetention.String())
	}
}

// publish pushes a stats snapshot to the sink without holding the engine lock.
func (e *Engine) publish(snapshot models.NetworkStats) {
	if e.sink == nil {
		return
	}
	go e.sink.PublishStats(snapshot)
}
