package statsfeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/gridforge/gpumesh/internal/engine"
	"github.com/gridforge/gpumesh/internal/models"
	"github.com/gridforge/gpumesh/internal/store"
)

// StoreSink persists stats snapshots to the database. Best-effort: write
// failures are logged, never surfaced to the engine.
type StoreSink struct {
	stats  store.StatsStore
	logger *slog.Logger
}

// NewStoreSink creates a store-backed stats sink.
func NewStoreSink(stats store.StatsStore, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{stats: stats, logger: logger}
}

// PublishStats implements engine.StatsSink.
func (s *StoreSink) PublishStats(stats models.NetworkStats) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.stats.Append(ctx, stats); err != nil {
		s.logger.Warn("persisting stats snapshot failed", "error", err)
	}
}

// MultiSink delivers each snapshot to every configured sink in order.
type MultiSink []engine.StatsSink

// PublishStats implements engine.StatsSink.
func (m MultiSink) PublishStats(stats models.NetworkStats) {
	for _, sink := range m {
		sink.PublishStats(stats)
	}
}
