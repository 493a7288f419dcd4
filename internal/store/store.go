// Package store provides database access interfaces for coordinator
// bookkeeping. The database holds records of devices, tasks, and stats for the
// UI and earnings pipeline; it is never the source of truth for coordination
// decisions, which live in the in-memory engine.
package store

import (
	"context"
	"time"

	"github.com/gridforge/gpumesh/internal/models"
)

// TaskRecord is the persisted view of a task and its outcome.
type TaskRecord struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	MinVRAMGB   float64    `json:"min_vram_gb"`
	MinHashRate float64    `json:"min_hash_rate"`
	NodeID      string     `json:"node_id"`
	Status      string     `json:"status"`
	Success     bool       `json:"success"`
	ComputeTime float64    `json:"compute_time"`
	HashRate    float64    `json:"hash_rate"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeviceStore defines operations for device registration records.
type DeviceStore interface {
	// Upsert creates or refreshes a device record.
	Upsert(ctx context.Context, device models.NodeInfo) error
	// Get retrieves a device record by id.
	Get(ctx context.Context, id string) (*models.NodeInfo, error)
	// List retrieves all device records.
	List(ctx context.Context) ([]*models.NodeInfo, error)
}

// TaskStore defines operations for task bookkeeping records.
type TaskStore interface {
	// Create records a freshly assigned task.
	Create(ctx context.Context, task models.Task, nodeID string) error
	// Complete records the task's result.
	Complete(ctx context.Context, taskID string, result models.Result) error
	// Get retrieves a task record by id.
	Get(ctx context.Context, taskID string) (*TaskRecord, error)
	// ListRecent retrieves the most recently created task records.
	ListRecent(ctx context.Context, limit int) ([]*TaskRecord, error)
}

// StatsStore defines operations for network stats snapshots.
type StatsStore interface {
	// Append stores a stats snapshot.
	Append(ctx context.Context, stats models.NetworkStats) error
	// Latest retrieves the most recent snapshot.
	Latest(ctx context.Context) (*models.NetworkStats, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Devices returns the DeviceStore for device registration records.
	Devices() DeviceStore
	// Tasks returns the TaskStore for task bookkeeping.
	Tasks() TaskStore
	// Stats returns the StatsStore for stats snapshots.
	Stats() StatsStore

	// Close closes the database connection.
	Close() error
}
