package models

import "time"

// DefaultPartition is the main connected component of the network. Nodes that
// miss heartbeats are moved into freshly minted partitions and merged back here.
const DefaultPartition = "default"

// GPUSpecs is the static capability descriptor of a compute device.
// Immutable after registration.
type GPUSpecs struct {
	GPUModel string  `json:"gpu_model"`
	VRAMGB   float64 `json:"vram_gb"`
	HashRate float64 `json:"hash_rate"`
}

// NodeInfo is a point-in-time snapshot of a registered compute node.
type NodeInfo struct {
	ID            string    `json:"id"`
	Specs         GPUSpecs  `json:"specs"`
	PartitionID   string    `json:"partition_id"`
	Peers         []string  `json:"peers"`
	Load          float64   `json:"load"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	RegisteredAt  time.Time `json:"registered_at"`
	Active        bool      `json:"active"`
}
