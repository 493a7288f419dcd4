package models

import "time"

// NetworkStats is the derived observability snapshot pushed to the stats sink.
// Recomputed in full on every change; never updated incrementally.
type NetworkStats struct {
	TotalNodes int `json:"total_nodes"`
	// ActiveNodes counts nodes with a heartbeat within two intervals.
	ActiveNodes int `json:"active_nodes"`
	// NetworkLoad is the mean load across all registered nodes.
	NetworkLoad float64 `json:"network_load"`
	// NetworkEfficiency is the percentage of submitted tasks with a successful
	// result. Floors at 85 when no tasks exist yet.
	NetworkEfficiency float64 `json:"network_efficiency"`
	// RewardPool is the base pool scaled by NetworkEfficiency/100.
	RewardPool float64   `json:"reward_pool"`
	ComputedAt time.Time `json:"computed_at"`
}
