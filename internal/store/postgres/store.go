// Package postgres provides the PostgreSQL implementation of the store
// interfaces, plus LISTEN/NOTIFY change subscriptions for task records.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/gridforge/gpumesh/internal/store"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger

	devices *DeviceStore
	tasks   *TaskStore
	stats   *StatsStore
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// NewPostgresStore creates a new PostgreSQL store with the given configuration.
func NewPostgresStore(cfg *Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{
		db:     db,
		logger: logger,
	}
	s.devices = &DeviceStore{db: db, logger: logger}
	s.tasks = &TaskStore{db: db, logger: logger}
	s.stats = &StatsStore{db: db, logger: logger}

	logger.Info("connected to PostgreSQL database")
	return s, nil
}

// Devices returns the DeviceStore.
func (s *PostgresStore) Devices() store.DeviceStore {
	return s.devices
}

// Tasks returns the TaskStore.
func (s *PostgresStore) Tasks() store.TaskStore {
	return s.tasks
}

// Stats returns the StatsStore.
func (s *PostgresStore) Stats() store.StatsStore {
	return s.stats
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the bookkeeping tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			gpu_model TEXT NOT NULL,
			vram_gb DOUBLE PRECISION NOT NULL,
			hash_rate DOUBLE PRECISION NOT NULL,
			partition_id TEXT NOT NULL,
			peers TEXT[] NOT NULL DEFAULT '{}',
			load DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_heartbeat TIMESTAMPTZ NOT NULL,
			registered_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			task_type TEXT NOT NULL,
			min_vram_gb DOUBLE PRECISION NOT NULL,
			min_hash_rate DOUBLE PRECISION NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			compute_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			hash_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS network_stats (
			id BIGSERIAL PRIMARY KEY,
			total_nodes INTEGER NOT NULL,
			active_nodes INTEGER NOT NULL,
			network_load DOUBLE PRECISION NOT NULL,
			network_efficiency DOUBLE PRECISION NOT NULL,
			reward_pool DOUBLE PRECISION NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}
