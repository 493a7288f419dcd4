package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gridforge/gpumesh/internal/models"
)

// SubmitTask validates the requirements, creates a task, and schedules it
// onto the least-loaded suitable node. Scheduling is fire-once: when no node
// qualifies the task is not queued for a later retry.
func (e *Engine) SubmitTask(ctx context.Context, taskType string, req models.TaskRequirements) (*models.Assignment, error) {
	if req.MinVRAMGB < e.cfg.MinVRAMGB || req.MinHashRate < e.cfg.MinHashRate {
		return nil, fmt.Errorf("%w: min vram %.0fGB min hashrate %.0f",
			ErrInvalidTaskRequirements, req.MinVRAMGB, req.MinHashRate)
	}

	task := &models.Task{
		ID:           uuid.NewString(),
		Type:         taskType,
		Requirements: req,
		CreatedAt:    time.Now(),
	}

	e.mu.Lock()
	e.tasks[task.ID] = task
	nodeID := e.assignLocked(task.ID, req)
	if nodeID == "" {
		delete(e.tasks, task.ID)
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: min vram %.0fGB min hashrate %.0f",
			ErrNoSuitableNode, req.MinVRAMGB, req.MinHashRate)
	}
	a := e.assignments[task.ID]
	out := &models.Assignment{TaskID: a.taskID, NodeID: a.nodeID, AssignedAt: a.assignedAt}
	e.mu.Unlock()

	e.logger.Info("task scheduled",
		"task_id", task.ID,
		"task_type", taskType,
		"node_id", nodeID,
		"cost", req.Cost(),
	)

	if e.chain != nil {
		go func() {
			sig, err := e.chain.SubmitTask(context.WithoutCancel(ctx), nodeID, taskType, req)
			if err != nil {
				e.logger.Error("chain task submission failed", "task_id", task.ID, "error", err)
				return
			}
			e.logger.Debug("task submitted on chain", "task_id", task.ID, "tx", sig)
		}()
	}

	return out, nil
}

// assignLocked picks the least-loaded node satisfying the requirements,
// charges it the task cost, and upserts the assignment record. Ties break by
// registration order. Returns "" when no node qualifies.
func (e *Engine) assignLocked(taskID string, req models.TaskRequirements) string {
	var best *node
	for _, id := range e.nodeOrder {
		n := e.nodes[id]
		if n.specs.VRAMGB < req.MinVRAMGB || n.specs.HashRate < req.MinHashRate {
			continue
		}
		if best == nil || n.load < best.load {
			best = n
		}
	}
	if best == nil {
		return ""
	}

	best.load += req.Cost()

	if a, ok := e.assignments[taskID]; ok {
		// Redistribution path: the record keeps its original sequence so
		// oldest-first ordering stays stable across moves.
		a.nodeID = best.id
		a.assignedAt = time.Now()
	} else {
		e.assignSeq++
		e.assignments[taskID] = &assignment{
			taskID:     taskID,
			nodeID:     best.id,
			assignedAt: time.Now(),
			seq:        e.assignSeq,
		}
	}

	return best.id
}

// redistributeLocked moves up to half of an overloaded node's assignments,
// oldest-first, to whichever node the scheduler now prefers. A task may land
// back on the same node when it is still the least loaded; that leaves the
// assignment in place.
func (e *Engine) redistributeLocked(nodeID string) {
	owned := make([]*assignment, 0)
	for _, a := range e.assignments {
		if a.nodeID == nodeID {
			owned = append(owned, a)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].seq < owned[j].seq })

	moveCount := len(owned) / 2
	var moved int

	for _, a := range owned[:moveCount] {
		task, ok := e.tasks[a.taskID]
		if !ok {
			continue
		}
		target := e.assignLocked(a.taskID, task.Requirements)
		if target == "" || target == nodeID {
			continue
		}
		if origin, ok := e.nodes[nodeID]; ok {
			origin.load -= task.Requirements.Cost()
			if origin.load < 0 {
				origin.load = 0
			}
		}
		moved++
	}

	if moved > 0 {
		e.logger.Info("redistributed assignments", "node_id", nodeID, "moved", moved)
	}
}

// SubmitResult records the outcome of a task, releases the assigned node's
// load, and deletes the assignment. The task is terminal afterwards.
func (e *Engine) SubmitResult(ctx context.Context, taskID string, result models.Result) error {
	e.mu.Lock()

	task, ok := e.tasks[taskID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	a, ok := e.assignments[taskID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAssigned, taskID)
	}

	result.SubmittedAt = time.Now()
	e.results[taskID] = &result
	task.CompletedAt = result.SubmittedAt

	nodeID := a.nodeID
	if n, ok := e.nodes[nodeID]; ok {
		n.load -= task.Requirements.Cost()
		if n.load < 0 {
			n.load = 0
		}
	}
	delete(e.assignments, taskID)

	e.recomputeStatsLocked()
	e.mu.Unlock()

	e.logger.Info("task completed",
		"task_id", taskID,
		"node_id", nodeID,
		"success", result.Success,
		"compute_time", result.ComputeTime,
	)

	if e.chain != nil {
		proof := models.ProofRecord{
			TaskID:      taskID,
			NodeID:      nodeID,
			Success:     result.Success,
			ComputeTime: result.ComputeTime,
			HashRate:    result.HashRate,
		}
		go func() {
			sig, err := e.chain.SubmitProof(context.WithoutCancel(ctx), proof)
			if err != nil {
				e.logger.Error("chain proof submission failed", "task_id", taskID, "error", err)
				return
			}
			e.logger.Debug("proof submitted on chain", "task_id", taskID, "tx", sig)
		}()
	}

	return nil
}

// Task returns a snapshot of a task and its assignment state.
func (e *Engine) Task(taskID string) (models.TaskInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return models.TaskInfo{}, false
	}

	info := models.TaskInfo{Task: *task, Status: models.TaskStatusCompleted}
	if a, ok := e.assignments[taskID]; ok {
		info.Status = models.TaskStatusAssigned
		info.NodeID = a.nodeID
	}
	if r, ok := e.results[taskID]; ok {
		res := *r
		info.Result = &res
	}
	return info, true
}
