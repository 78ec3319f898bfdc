// Package config loads and hot-reloads the mesh's TOML configuration.
// Grounded on internal/daemon/config.go: struct tags per section, a
// package-level Default() with production-sane values, and a file on
// disk that's optional (missing file falls back to defaults rather
// than erroring).
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/BurntSushi/toml"
)

// Config holds the mesh's declarative configuration surface, matching
// spec §6's recognized-options list section for section.
type Config struct {
	Network     NetworkConfig     `toml:"network"`
	Performance PerformanceConfig `toml:"performance"`
	Economic    EconomicConfig    `toml:"economic"`
	Monitoring  MonitoringConfig  `toml:"monitoring"`
	Features    FeatureFlags      `toml:"features"`
	Discovery   DiscoveryConfig   `toml:"discovery"`
}

// NetworkConfig controls the mesh transport listener.
type NetworkConfig struct {
	ListenAddress       string `toml:"listen_address"`
	ListenPort          int    `toml:"listen_port"`
	MaxConnections      int    `toml:"max_connections"`
	ConnectionTimeoutS  int    `toml:"connection_timeout_s"`
	HeartbeatIntervalS  int    `toml:"heartbeat_interval_s"`
	EnableTLS           bool   `toml:"enable_tls"`
	TLSCertPath         string `toml:"tls_cert_path"`
	TLSKeyPath          string `toml:"tls_key_path"`
}

// PerformanceConfig controls the orchestrator and engine's scheduling
// behavior.
type PerformanceConfig struct {
	DefaultStrategy          string  `toml:"default_strategy"`
	MaxConcurrentTasks       int     `toml:"max_concurrent_tasks"`
	WorkerThreads            int     `toml:"worker_threads"`
	TaskTimeoutMs            int     `toml:"task_timeout_ms"`
	TrustWeight              float64 `toml:"trust_weight"`
	SpeedWeight              float64 `toml:"speed_weight"`
	PowerWeight              float64 `toml:"power_weight"`
	EnableAdaptiveScheduling bool    `toml:"enable_adaptive_scheduling"`
}

// EconomicConfig controls reward pricing and reputation penalties.
type EconomicConfig struct {
	DefaultMaxCostTokens    int64   `toml:"default_max_cost_tokens"`
	MinReputationThreshold  float64 `toml:"min_reputation_threshold"`
	EnableDynamicPricing    bool    `toml:"enable_dynamic_pricing"`
	PriceAdjustmentRate     float64 `toml:"price_adjustment_rate"`
	SlashingPenalty         float64 `toml:"slashing_penalty"`
	ReputationDecayRate     float64 `toml:"reputation_decay_rate"`
}

// MonitoringConfig controls metrics and logging output.
type MonitoringConfig struct {
	EnableMetrics     bool   `toml:"enable_metrics"`
	EnableLogging     bool   `toml:"enable_logging"`
	MetricsEndpoint   string `toml:"metrics_endpoint"`
	MetricsIntervalS  int    `toml:"metrics_interval_s"`
	LogLevel          string `toml:"log_level"`
	LogPath           string `toml:"log_path"`
}

// FeatureFlags gates optional subsystems.
type FeatureFlags struct {
	EnableZKProofs          bool `toml:"enable_zk_proofs"`
	EnableFederatedLearning bool `toml:"enable_federated_learning"`
	EnableGreenScheduling   bool `toml:"enable_green_scheduling"`
	EnableLoadRebalancing   bool `toml:"enable_load_rebalancing"`
}

// DiscoveryConfig controls the peer-discovery and bootstrap process.
type DiscoveryConfig struct {
	BootstrapPeers    []string `toml:"bootstrap_peers"`
	DiscoveryIntervalS int     `toml:"discovery_interval_s"`
	MinPeerCount      int      `toml:"min_peer_count"`
}

// Default returns a production-sane configuration: TLS, ZK proofs,
// green scheduling and dynamic pricing are off; federated learning and
// load rebalancing are on.
func Default() Config {
	return Config{
		Network: NetworkConfig{
			ListenAddress:      "0.0.0.0",
			ListenPort:         7946,
			MaxConnections:     256,
			ConnectionTimeoutS: 10,
			HeartbeatIntervalS: 10,
			EnableTLS:          false,
		},
		Performance: PerformanceConfig{
			DefaultStrategy:          "weighted-score",
			MaxConcurrentTasks:       64,
			WorkerThreads:            0, // 0 = auto (runtime.NumCPU())
			TaskTimeoutMs:            30000,
			TrustWeight:              0.6,
			SpeedWeight:              0.3,
			PowerWeight:              0.1,
			EnableAdaptiveScheduling: true,
		},
		Economic: EconomicConfig{
			DefaultMaxCostTokens:   0, // 0 = unbounded
			MinReputationThreshold: 0.2,
			EnableDynamicPricing:   false,
			PriceAdjustmentRate:    0.05,
			SlashingPenalty:        0.1,
			ReputationDecayRate:    0.01,
		},
		Monitoring: MonitoringConfig{
			EnableMetrics:    true,
			EnableLogging:    true,
			MetricsEndpoint:  "/metrics",
			MetricsIntervalS: 15,
			LogLevel:         "info",
			LogPath:          "",
		},
		Features: FeatureFlags{
			EnableZKProofs:          false,
			EnableFederatedLearning: true,
			EnableGreenScheduling:   false,
			EnableLoadRebalancing:   true,
		},
		Discovery: DiscoveryConfig{
			BootstrapPeers:     nil,
			DiscoveryIntervalS: 30,
			MinPeerCount:       3,
		},
	}
}

// Load reads a TOML config file at path, falling back to Default if
// the file does not exist. Unrecognized keys in the file are ignored
// by the underlying decoder (BurntSushi/toml's default behavior).
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(cfg Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Store holds a hot-reloadable Config behind an atomic pointer, so a
// reader never blocks on a concurrent reload and never observes a
// partially-applied update. Grounded on the swap-the-pointer pattern
// the teacher's daemon reaches for whenever a long-lived value needs
// to change out from under running goroutines.
type Store struct {
	v atomic.Pointer[Config]
}

// NewStore builds a Store seeded with initial.
func NewStore(initial Config) *Store {
	s := &Store{}
	s.v.Store(&initial)
	return s
}

// Get returns the currently active configuration.
func (s *Store) Get() Config {
	return *s.v.Load()
}

// Reload reads path and atomically swaps in the new configuration.
// The previous configuration remains valid for any goroutine still
// holding a copy from an earlier Get call.
func (s *Store) Reload(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	s.v.Store(&cfg)
	return nil
}
