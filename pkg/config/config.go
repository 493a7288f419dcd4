// Package config provides environment-based configuration for the coordinator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the coordinator.
type Config struct {
	// Database configuration
	DatabaseDSN string

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Server configuration
	APIHost string
	APIPort int

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Chain program collaborator
	Chain ChainConfig

	// Coordination engine configuration
	Network NetworkConfig
}

// ChainConfig holds chain-program RPC client configuration.
type ChainConfig struct {
	// Endpoint is the JSON-RPC endpoint of the chain program gateway.
	Endpoint string
	// Timeout bounds every chain call; expiry is logged, never escalated.
	Timeout time.Duration
	// ProgramID identifies the on-chain compute-network program.
	ProgramID string
}

// NetworkConfig holds coordination-engine tunables.
type NetworkConfig struct {
	// HeartbeatInterval drives the failure-detector and topology tick.
	HeartbeatInterval time.Duration
	// MaxPeers bounds each node's peer set.
	MaxPeers int
	// MinVRAMGB and MinHashRate are the registration spec floors.
	MinVRAMGB   float64
	MinHashRate float64
	// OverloadFactor triggers redistribution when load exceeds factor x average.
	OverloadFactor float64
	// MinPeerCount triggers peer discovery for under-connected nodes.
	MinPeerCount int
	// MergeThreshold is the maximum partition size eligible for merge into default.
	MergeThreshold int
	// BaseRewardPool is scaled by network efficiency for the stats snapshot.
	BaseRewardPool float64
	// TaskRetention evicts completed tasks older than this; 0 keeps them forever.
	TaskRetention time.Duration
}

// Load reads configuration from the environment. If GPUMESH_CONFIG points at a
// YAML file, that file is read first and environment variables override it.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("GPUMESH_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a YAML file over the defaults.
// Environment variables are not consulted.
func LoadFromFile(path string) (*Config, error) {
	cfg := defaults()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Network.MaxPeers <= 0 {
		return fmt.Errorf("network.max_peers must be positive")
	}
	if c.Network.HeartbeatInterval <= 0 {
		return fmt.Errorf("network.heartbeat_interval must be positive")
	}
	return nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	cfg := defaults()
	cfg.JWTSecret = "development-secret-key-min-32-chars"
	cfg.applyEnv()
	return cfg
}

func defaults() *Config {
	return &Config{
		DatabaseDSN:     "postgres://localhost:5432/gpumesh?sslmode=disable",
		JWTExpiry:       24 * time.Hour,
		APIHost:         "0.0.0.0",
		APIPort:         8080,
		ShutdownTimeout: 30 * time.Second,
		Chain: ChainConfig{
			Endpoint: "http://localhost:8899",
			Timeout:  10 * time.Second,
		},
		Network: DefaultNetworkConfig(),
	}
}

// DefaultNetworkConfig returns the coordination-engine defaults.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		HeartbeatInterval: 60 * time.Second,
		MaxPeers:          10,
		MinVRAMGB:         8,
		MinHashRate:       50,
		OverloadFactor:    1.5,
		MinPeerCount:      3,
		MergeThreshold:    3,
		BaseRewardPool:    1000,
		TaskRetention:     0,
	}
}

// fileConfig mirrors Config for YAML decoding; durations are strings in
// time.ParseDuration form ("60s", "5m").
type fileConfig struct {
	DatabaseDSN     string `yaml:"database_dsn"`
	JWTSecret       string `yaml:"jwt_secret"`
	JWTExpiry       string `yaml:"jwt_expiry"`
	APIHost         string `yaml:"api_host"`
	APIPort         int    `yaml:"api_port"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	Chain struct {
		Endpoint  string `yaml:"endpoint"`
		Timeout   string `yaml:"timeout"`
		ProgramID string `yaml:"program_id"`
	} `yaml:"chain"`

	Network struct {
		HeartbeatInterval string   `yaml:"heartbeat_interval"`
		MaxPeers          *int     `yaml:"max_peers"`
		MinVRAMGB         *float64 `yaml:"min_vram_gb"`
		MinHashRate       *float64 `yaml:"min_hash_rate"`
		OverloadFactor    *float64 `yaml:"overload_factor"`
		MinPeerCount      *int     `yaml:"min_peer_count"`
		MergeThreshold    *int     `yaml:"merge_threshold"`
		BaseRewardPool    *float64 `yaml:"base_reward_pool"`
		TaskRetention     string   `yaml:"task_retention"`
	} `yaml:"network"`
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.DatabaseDSN != "" {
		c.DatabaseDSN = fc.DatabaseDSN
	}
	if fc.JWTSecret != "" {
		c.JWTSecret = fc.JWTSecret
	}
	if err := mergeDuration(&c.JWTExpiry, fc.JWTExpiry); err != nil {
		return fmt.Errorf("jwt_expiry: %w", err)
	}
	if fc.APIHost != "" {
		c.APIHost = fc.APIHost
	}
	if fc.APIPort != 0 {
		c.APIPort = fc.APIPort
	}
	if err := mergeDuration(&c.ShutdownTimeout, fc.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown_timeout: %w", err)
	}

	if fc.Chain.Endpoint != "" {
		c.Chain.Endpoint = fc.Chain.Endpoint
	}
	if err := mergeDuration(&c.Chain.Timeout, fc.Chain.Timeout); err != nil {
		return fmt.Errorf("chain.timeout: %w", err)
	}
	if fc.Chain.ProgramID != "" {
		c.Chain.ProgramID = fc.Chain.ProgramID
	}

	if err := mergeDuration(&c.Network.HeartbeatInterval, fc.Network.HeartbeatInterval); err != nil {
		return fmt.Errorf("network.heartbeat_interval: %w", err)
	}
	if fc.Network.MaxPeers != nil {
		c.Network.MaxPeers = *fc.Network.MaxPeers
	}
	if fc.Network.MinVRAMGB != nil {
		c.Network.MinVRAMGB = *fc.Network.MinVRAMGB
	}
	if fc.Network.MinHashRate != nil {
		c.Network.MinHashRate = *fc.Network.MinHashRate
	}
	if fc.Network.OverloadFactor != nil {
		c.Network.OverloadFactor = *fc.Network.OverloadFactor
	}
	if fc.Network.MinPeerCount != nil {
		c.Network.MinPeerCount = *fc.Network.MinPeerCount
	}
	if fc.Network.MergeThreshold != nil {
		c.Network.MergeThreshold = *fc.Network.MergeThreshold
	}
	if fc.Network.BaseRewardPool != nil {
		c.Network.BaseRewardPool = *fc.Network.BaseRewardPool
	}
	if err := mergeDuration(&c.Network.TaskRetention, fc.Network.TaskRetention); err != nil {
		return fmt.Errorf("network.task_retention: %w", err)
	}

	return nil
}

func mergeDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func (c *Config) applyEnv() {
	c.DatabaseDSN = getEnv("DATABASE_URL", c.DatabaseDSN)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTExpiry = getDurationEnv("JWT_EXPIRY", c.JWTExpiry)
	c.APIHost = getEnv("API_HOST", c.APIHost)
	c.APIPort = getIntEnv("API_PORT", c.APIPort)
	c.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.Chain.Endpoint = getEnv("CHAIN_ENDPOINT", c.Chain.Endpoint)
	c.Chain.Timeout = getDurationEnv("CHAIN_TIMEOUT", c.Chain.Timeout)
	c.Chain.ProgramID = getEnv("CHAIN_PROGRAM_ID", c.Chain.ProgramID)

	c.Network.HeartbeatInterval = getDurationEnv("NETWORK_HEARTBEAT_INTERVAL", c.Network.HeartbeatInterval)
	c.Network.MaxPeers = getIntEnv("NETWORK_MAX_PEERS", c.Network.MaxPeers)
	c.Network.TaskRetention = getDurationEnv("NETWORK_TASK_RETENTION", c.Network.TaskRetention)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
