package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gridforge/gpumesh/internal/models"
	"github.com/gridforge/gpumesh/internal/store"
)

// taskChannel is the LISTEN/NOTIFY channel carrying task change events.
const taskChannel = "gpumesh_tasks"

// TaskStore implements store.TaskStore using PostgreSQL. Every write also
// raises a NOTIFY on the task channel so subscribers see changes live.
type TaskStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Create records a freshly assigned task.
func (s *TaskStore) Create(ctx context.Context, task models.Task, nodeID string) error {
	query := `
		INSERT INTO tasks (id, task_type, min_vram_gb, min_hash_rate, node_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Type,
		task.Requirements.MinVRAMGB,
		task.Requirements.MinHashRate,
		nodeID,
		string(models.TaskStatusAssigned),
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating task record %s: %w", task.ID, err)
	}

	s.notify(ctx, task.ID, "created")
	return nil
}

// Complete records the task's result.
func (s *TaskStore) Complete(ctx context.Context, taskID string, result models.Result) error {
	query := `
		UPDATE tasks
		SET status = $2, success = $3, compute_time = $4, hash_rate = $5, completed_at = $6
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		taskID,
		string(models.TaskStatusCompleted),
		result.Success,
		result.ComputeTime,
		result.HashRate,
		result.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("completing task record %s: %w", taskID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("completing task record %s: no such task", taskID)
	}

	s.notify(ctx, taskID, "completed")
	return nil
}

// Get retrieves a task record by id.
func (s *TaskStore) Get(ctx context.Context, taskID string) (*store.TaskRecord, error) {
	query := `
		SELECT id, task_type, min_vram_gb, min_hash_rate, node_id, status, success, compute_time, hash_rate, created_at, completed_at
		FROM tasks WHERE id = $1`

	record, err := scanTask(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting task %s: %w", taskID, err)
	}
	return record, nil
}

// ListRecent retrieves the most recently created task records.
func (s *TaskStore) ListRecent(ctx context.Context, limit int) ([]*store.TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, task_type, min_vram_gb, min_hash_rate, node_id, status, success, compute_time, hash_rate, created_at, completed_at
		FROM tasks ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var records []*store.TaskRecord
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// notify raises a change notification; failures are logged, not escalated.
func (s *TaskStore) notify(ctx context.Context, taskID, event string) {
	payload, err := json.Marshal(TaskEvent{TaskID: taskID, Event: event})
	if err != nil {
		return
	}
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, taskChannel, string(payload)); err != nil {
		s.logger.Warn("task change notification failed", "task_id", taskID, "error", err)
	}
}

func scanTask(row rowScanner) (*store.TaskRecord, error) {
	var record store.TaskRecord
	var completedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.Type,
		&record.MinVRAMGB,
		&record.MinHashRate,
		&record.NodeID,
		&record.Status,
		&record.Success,
		&record.ComputeTime,
		&record.HashRate,
		&record.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	return &record, nil
}
