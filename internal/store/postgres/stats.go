package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gridforge/gpumesh/internal/models"
)

// StatsStore implements store.StatsStore using PostgreSQL.
type StatsStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Append stores a stats snapshot.
func (s *StatsStore) Append(ctx context.Context, stats models.NetworkStats) error {
	query := `
		INSERT INTO network_stats (total_nodes, active_nodes, network_load, network_efficiency, reward_pool, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		stats.TotalNodes,
		stats.ActiveNodes,
		stats.NetworkLoad,
		stats.NetworkEfficiency,
		stats.RewardPool,
		stats.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("appending stats snapshot: %w", err)
	}
	return nil
}

// Latest retrieves the most recent snapshot.
func (s *StatsStore) Latest(ctx context.Context) (*models.NetworkStats, error) {
	query := `
		SELECT total_nodes, active_nodes, network_load, network_efficiency, reward_pool, computed_at
		FROM network_stats ORDER BY id DESC LIMIT 1`

	var stats models.NetworkStats
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalNodes,
		&stats.ActiveNodes,
		&stats.NetworkLoad,
		&stats.NetworkEfficiency,
		&stats.RewardPool,
		&stats.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest stats: %w", err)
	}
	return &stats, nil
}
