package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/gridforge/gpumesh/internal/models"
)

// CheckHeartbeats sweeps the registry once. Nodes silent for more than two
// intervals are isolated into a fresh partition; responsive nodes are
// refreshed and their partition considered for a merge back into default.
func (e *Engine) CheckHeartbeats() {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.nodeOrder {
		n := e.nodes[id]
		if now.Sub(n.lastHeartbeat) > 2*e.cfg.HeartbeatInterval {
			e.isolateLocked(n)
		} else {
			e.refreshPartitionLocked(n, now)
		}
	}
}

// isolateLocked moves an unresponsive node into a freshly minted partition.
// Repeated isolation mints a new partition id each time; ids are never reused.
func (e *Engine) isolateLocked(n *node) {
	e.removeFromPartitionLocked(n)

	partitionID := uuid.NewString()
	n.partitionID = partitionID
	e.partitions[partitionID] = map[string]struct{}{n.id: {}}

	e.logger.Warn("node unresponsive, partitioned",
		"node_id", n.id,
		"partition_id", partitionID,
		"last_heartbeat", n.lastHeartbeat,
	)
}

// refreshPartitionLocked bumps a responsive node's heartbeat, reinserts it
// into its partition's member set, and merges the whole partition back into
// default once it is small and fresh. The merge is all-or-nothing.
func (e *Engine) refreshPartitionLocked(n *node, now time.Time) {
	n.lastHeartbeat = now
	e.partitionSetLocked(n.partitionID)[n.id] = struct{}{}

	if n.partitionID == models.DefaultPartition {
		return
	}

	members := e.partitions[n.partitionID]
	if len(members) >= e.cfg.MergeThreshold {
		return
	}
	if now.Sub(n.lastHeartbeat) > e.cfg.HeartbeatInterval {
		return
	}

	oldID := n.partitionID
	defaultSet := e.partitionSetLocked(models.DefaultPartition)
	for memberID := range members {
		if member, ok := e.nodes[memberID]; ok {
			member.partitionID = models.DefaultPartition
		}
		defaultSet[memberID] = struct{}{}
	}
	delete(e.partitions, oldID)

	e.logger.Info("partition merged into default",
		"partition_id", oldID,
		"members", len(members),
	)
}

// Partitions returns the current partition table as id -> member ids.
func (e *Engine) Partitions() map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string][]string, len(e.partitions))
	for id, set := range e.partitions {
		members := make([]string, 0, len(set))
		for memberID := range set {
			members = append(members, memberID)
		}
		out[id] = members
	}
	return out
}
