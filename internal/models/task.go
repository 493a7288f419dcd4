package models

import "time"

// TaskStatus tracks a task through its one-shot lifecycle.
type TaskStatus string

const (
	// TaskStatusAssigned means the task has an active assignment.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusCompleted means a result has been recorded; terminal.
	TaskStatusCompleted TaskStatus = "completed"
)

// TaskRequirements are the resource requirements a node must satisfy.
type TaskRequirements struct {
	MinVRAMGB   float64 `json:"min_vram_gb"`
	MinHashRate float64 `json:"min_hash_rate"`
	MinStake    float64 `json:"min_stake,omitempty"`
}

// Cost is the synthetic load added to a node for the lifetime of an assignment.
func (r TaskRequirements) Cost() float64 {
	return r.MinVRAMGB * r.MinHashRate / 100
}

// Task is a unit of work submitted to the network. Immutable after creation
// except through its Assignment and Result.
type Task struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Requirements TaskRequirements `json:"requirements"`
	SubmittedBy  string           `json:"submitted_by,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  time.Time        `json:"completed_at,omitempty"`
}

// Assignment binds a task to the node currently responsible for it.
// Exactly one active assignment exists per task.
type Assignment struct {
	TaskID     string    `json:"task_id"`
	NodeID     string    `json:"node_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Result is the outcome of a completed task. Written once.
type Result struct {
	Success     bool      `json:"success"`
	ComputeTime float64   `json:"compute_time"`
	HashRate    float64   `json:"hash_rate"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TaskInfo is a point-in-time snapshot of a task and its assignment state.
type TaskInfo struct {
	Task   Task       `json:"task"`
	Status TaskStatus `json:"status"`
	NodeID string     `json:"node_id,omitempty"`
	Result *Result    `json:"result,omitempty"`
}

// ProofRecord is the proof-of-compute payload pushed to the chain program
// after a result is recorded.
type ProofRecord struct {
	TaskID      string  `json:"task_id"`
	NodeID      string  `json:"node_id"`
	Success     bool    `json:"success"`
	ComputeTime float64 `json:"compute_time"`
	HashRate    float64 `json:"hash_rate"`
}
