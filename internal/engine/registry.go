package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gridforge/gpumesh/internal/models"
)

// RegisterNode validates the device specs and adds the node to the registry.
// The in-memory registration is authoritative; the chain write that follows is
// best-effort bookkeeping and never rolls it back.
func (e *Engine) RegisterNode(ctx context.Context, id string, specs models.GPUSpecs) error {
	if specs.VRAMGB < e.cfg.MinVRAMGB || specs.HashRate < e.cfg.MinHashRate {
		return fmt.Errorf("%w: vram %.0fGB hashrate %.0f (need %.0fGB / %.0f)",
			ErrInsufficientSpecs, specs.VRAMGB, specs.HashRate, e.cfg.MinVRAMGB, e.cfg.MinHashRate)
	}

	now := time.Now()

	e.mu.Lock()
	if existing, ok := e.nodes[id]; ok {
		// Re-registration of a known device: detach it from its previous
		// partition and peers so the fresh state keeps invariants intact.
		e.removeFromPartitionLocked(existing)
		e.dropPeerEdgesLocked(existing)
	} else {
		e.nodeOrder = append(e.nodeOrder, id)
	}

	n := &node{
		id:            id,
		specs:         specs,
		partitionID:   models.DefaultPartition,
		peers:         make(map[string]struct{}),
		lastHeartbeat: now,
		registeredAt:  now,
	}
	e.nodes[id] = n
	e.partitionSetLocked(models.DefaultPartition)[id] = struct{}{}

	e.discoverPeersLocked(n)
	e.recomputeStatsLocked()
	e.mu.Unlock()

	e.logger.Info("node registered",
		"node_id", id,
		"gpu_model", specs.GPUModel,
		"vram_gb", specs.VRAMGB,
		"hash_rate", specs.HashRate,
	)

	if e.chain != nil {
		go func() {
			sig, err := e.chain.RegisterDevice(context.WithoutCancel(ctx), id, specs)
			if err != nil {
				e.logger.Error("chain device registration failed", "node_id", id, "error", err)
				return
			}
			e.logger.Debug("device registered on chain", "node_id", id, "tx", sig)
		}()
	}

	return nil
}

// Heartbeat records a liveness signal from a node's device agent.
func (e *Engine) Heartbeat(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.lastHeartbeat = time.Now()
	return nil
}

// Node returns a snapshot of a registered node.
func (e *Engine) Node(id string) (models.NodeInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[id]
	if !ok {
		return models.NodeInfo{}, false
	}
	return e.nodeInfoLocked(n), true
}

// Nodes returns snapshots of all registered nodes in registration order.
func (e *Engine) Nodes() []models.NodeInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]models.NodeInfo, 0, len(e.nodeOrder))
	for _, id := range e.nodeOrder {
		infos = append(infos, e.nodeInfoLocked(e.nodes[id]))
	}
	return infos
}

func (e *Engine) nodeInfoLocked(n *node) models.NodeInfo {
	peers := make([]string, 0, len(n.peers))
	for id := range n.peers {
		peers = append(peers, id)
	}
	sort.Strings(peers)

	return models.NodeInfo{
		ID:            n.id,
		Specs:         n.specs,
		PartitionID:   n.partitionID,
		Peers:         peers,
		Load:          n.load,
		LastHeartbeat: n.lastHeartbeat,
		RegisteredAt:  n.registeredAt,
		Active:        time.Since(n.lastHeartbeat) <= 2*e.cfg.HeartbeatInterval,
	}
}

// partitionSetLocked returns the member set for a partition, creating it if
// needed.
func (e *Engine) partitionSetLocked(partitionID string) map[string]struct{} {
	set, ok := e.partitions[partitionID]
	if !ok {
		set = make(map[string]struct{})
		e.partitions[partitionID] = set
	}
	return set
}

// removeFromPartitionLocked detaches a node from its partition member set.
// Empty non-default partitions are dropped from the table.
func (e *Engine) removeFromPartitionLocked(n *node) {
	set, ok := e.partitions[n.partitionID]
	if !ok {
		return
	}
	delete(set, n.id)
	if len(set) == 0 && n.partitionID != models.DefaultPartition {
		delete(e.partitions, n.partitionID)
	}
}

// dropPeerEdgesLocked removes all peer edges touching a node, both directions.
func (e *Engine) dropPeerEdgesLocked(n *node) {
	for peerID := range n.peers {
		if peer, ok := e.nodes[peerID]; ok {
			delete(peer.peers, n.id)
		}
	}
	n.peers = make(map[string]struct{})
}
