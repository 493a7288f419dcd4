package engine

import (
	"time"

	"github.com/gridforge/gpumesh/internal/models"
)

// defaultEfficiency is reported while no tasks exist, so an empty network does
// not read as 0% efficient.
const defaultEfficiency = 85

// Stats returns the latest derived network snapshot.
func (e *Engine) Stats() models.NetworkStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// RecomputeStats recomputes the snapshot on demand and pushes it to the sink.
func (e *Engine) RecomputeStats() models.NetworkStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recomputeStatsLocked()
	return e.stats
}

// recomputeStatsLocked derives the full snapshot from current state. No
// incremental updates; every call recomputes everything.
func (e *Engine) recomputeStatsLocked() {
	now := time.Now()

	stats := models.NetworkStats{
		TotalNodes: len(e.nodes),
		ComputedAt: now,
	}

	var totalLoad float64
	for _, n := range e.nodes {
		totalLoad += n.load
		if now.Sub(n.lastHeartbeat) <= 2*e.cfg.HeartbeatInterval {
			stats.ActiveNodes++
		}
	}
	if len(e.nodes) > 0 {
		stats.NetworkLoad = totalLoad / float64(len(e.nodes))
	}

	stats.NetworkEfficiency = defaultEfficiency
	if len(e.tasks) > 0 {
		var succeeded int
		for taskID := range e.tasks {
			if r, ok := e.results[taskID]; ok && r.Success {
				succeeded++
			}
		}
		stats.NetworkEfficiency = float64(succeeded) / float64(len(e.tasks)) * 100
	}

	stats.RewardPool = e.cfg.BaseRewardPool * stats.NetworkEfficiency / 100

	e.stats = stats
	e.publish(stats)
}
