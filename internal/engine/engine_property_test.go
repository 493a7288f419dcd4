package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/gridforge/gpumesh/internal/models"
)

// genSpecs generates specs at or above the registration floor.
func genSpecs() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(8, 48),
		gen.Float64Range(50, 400),
	).Map(func(vals []interface{}) models.GPUSpecs {
		return models.GPUSpecs{
			GPUModel: "test-gpu",
			VRAMGB:   vals[0].(float64),
			HashRate: vals[1].(float64),
		}
	})
}

// genLoads generates a slice of node loads.
func genLoads() gopter.Gen {
	return gen.SliceOfN(8, gen.Float64Range(0, 100))
}

func registerN(e *Engine, specs []models.GPUSpecs) []string {
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = fmt.Sprintf("node-%d", i)
		_ = e.RegisterNode(context.Background(), ids[i], s)
	}
	return ids
}

// Peer edges stay symmetric and bounded across arbitrary discovery sequences.
func TestPeerInvariantsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("peer edges are symmetric and bounded", prop.ForAll(
		func(specs []models.GPUSpecs, extraRounds int) bool {
			e := newTestEngine()
			ids := registerN(e, specs)

			// Extra discovery passes must not break anything.
			for r := 0; r < extraRounds; r++ {
				for _, id := range ids {
					e.mu.Lock()
					e.discoverPeersLocked(e.nodes[id])
					e.mu.Unlock()
				}
			}

			e.mu.Lock()
			defer e.mu.Unlock()

			for _, n := range e.nodes {
				if len(n.peers) > e.cfg.MaxPeers {
					return false
				}
				for peerID := range n.peers {
					peer, ok := e.nodes[peerID]
					if !ok {
						return false
					}
					if _, back := peer.peers[n.id]; !back {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(12, genSpecs()),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

// The scheduler always picks a strictly minimal load among suitable nodes.
func TestLeastLoadedAssignmentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("assignment goes to the least-loaded suitable node", prop.ForAll(
		func(loads []float64) bool {
			e := newTestEngine()
			for i, load := range loads {
				id := fmt.Sprintf("node-%d", i)
				_ = e.RegisterNode(context.Background(), id, models.GPUSpecs{VRAMGB: 16, HashRate: 100})
				e.mu.Lock()
				e.nodes[id].load = load
				e.mu.Unlock()
			}

			expected := 0
			for i, l := range loads {
				if l < loads[expected] {
					expected = i
				}
			}

			a, err := e.SubmitTask(context.Background(), "bench", models.TaskRequirements{MinVRAMGB: 8, MinHashRate: 50})
			if err != nil {
				return false
			}
			return a.NodeID == fmt.Sprintf("node-%d", expected)
		},
		genLoads(),
	))

	properties.TestingRun(t)
}

// Every node belongs to exactly one partition at any observation point.
func TestPartitionExclusivityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("each node appears in exactly one partition", prop.ForAll(
		func(specs []models.GPUSpecs, staleMask []bool, sweeps int) bool {
			e := newTestEngine()
			ids := registerN(e, specs)

			for s := 0; s < sweeps; s++ {
				e.mu.Lock()
				for i, id := range ids {
					if staleMask[i%len(staleMask)] {
						e.nodes[id].lastHeartbeat = e.nodes[id].lastHeartbeat.Add(-3 * e.cfg.HeartbeatInterval)
					}
				}
				e.mu.Unlock()
				e.CheckHeartbeats()
			}

			e.mu.Lock()
			defer e.mu.Unlock()

			seen := make(map[string]int)
			for partitionID, set := range e.partitions {
				for memberID := range set {
					seen[memberID]++
					if n, ok := e.nodes[memberID]; !ok || n.partitionID != partitionID {
						return false
					}
				}
			}
			for _, id := range ids {
				if seen[id] != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, genSpecs()),
		gen.SliceOfN(6, gen.Bool()),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

// Recomputing stats twice without intervening mutation yields identical output.
func TestStatsIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("recompute is idempotent", prop.ForAll(
		func(specs []models.GPUSpecs, taskCount int) bool {
			e := newTestEngine()
			registerN(e, specs)
			for i := 0; i < taskCount; i++ {
				a, err := e.SubmitTask(context.Background(), "bench", models.TaskRequirements{MinVRAMGB: 8, MinHashRate: 50})
				if err != nil {
					return false
				}
				if i%2 == 0 {
					if err := e.SubmitResult(context.Background(), a.TaskID, models.Result{Success: true}); err != nil {
						return false
					}
				}
			}

			first := e.RecomputeStats()
			second := e.RecomputeStats()

			// ComputedAt necessarily differs; everything derived must not.
			first.ComputedAt = second.ComputedAt
			return first == second
		},
		gen.SliceOfN(4, genSpecs()),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}

// Load never goes negative across assignment/completion/redistribution mixes.
func TestLoadNonNegativeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("node load stays non-negative", prop.ForAll(
		func(specs []models.GPUSpecs, taskCount int) bool {
			e := newTestEngine()
			registerN(e, specs)

			var taskIDs []string
			for i := 0; i < taskCount; i++ {
				a, err := e.SubmitTask(context.Background(), "bench", models.TaskRequirements{MinVRAMGB: 8, MinHashRate: 50})
				if err != nil {
					return false
				}
				taskIDs = append(taskIDs, a.TaskID)
			}

			e.OptimizeTopology()

			for i, id := range taskIDs {
				if i%2 == 0 {
					if err := e.SubmitResult(context.Background(), id, models.Result{Success: i%4 == 0}); err != nil {
						return false
					}
				}
			}

			e.mu.Lock()
			defer e.mu.Unlock()
			for _, n := range e.nodes {
				if n.load < 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, genSpecs()),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
