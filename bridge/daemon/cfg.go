package daemon

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/yabridge/bridge/ager"
	"github.com/yanet-platform/yabridge/bridge/api"
	"github.com/yanet-platform/yabridge/bridge/fdb"
	"github.com/yanet-platform/yabridge/common/go/logging"
)

// Config is the daemon configuration.
type Config struct {
	// Logging configuration.
	Logging *logging.Config `yaml:"logging"`
	// Bridge configuration.
	Bridge *BridgeConfig `yaml:"bridge"`
	// FDB is the forwarding database configuration.
	FDB *FDBConfig `yaml:"fdb"`
	// API is the management API configuration.
	API *api.Config `yaml:"api"`
}

// BridgeConfig describes the bridge whose forwarding database is kept.
type BridgeConfig struct {
	// Name is the kernel bridge to follow for port attach, detach and
	// address changes. Empty disables following.
	Name string `yaml:"name"`
	// Timers are the initial hold times.
	Timers fdb.TimersConfig `yaml:",inline"`
	// GCInterval is the period of the expired entries sweep.
	GCInterval time.Duration `yaml:"gc_interval"`
	// FollowKernelAgeing makes the ageing time track the one configured on
	// the kernel bridge.
	FollowKernelAgeing bool `yaml:"follow_kernel_ageing"`
}

// FDBConfig is the forwarding database configuration.
type FDBConfig struct {
	// Buckets is the number of hash buckets, rounded up to a power of two.
	Buckets int `yaml:"buckets"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		Bridge: &BridgeConfig{
			Timers:             *fdb.DefaultTimersConfig(),
			GCInterval:         ager.DefaultInterval,
			FollowKernelAgeing: true,
		},
		FDB: &FDBConfig{
			Buckets: fdb.DefaultBuckets,
		},
		API: api.DefaultConfig(),
	}
}

// LoadConfig loads configuration from a YAML file at the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (m *Config) Validate() error {
	if m.Bridge.Timers.AgeingTime < 0 {
		return fmt.Errorf("bridge.ageing_time must not be negative")
	}
	if m.Bridge.Timers.ForwardDelay < 0 {
		return fmt.Errorf("bridge.forward_delay must not be negative")
	}
	if m.Bridge.GCInterval <= 0 {
		return fmt.Errorf("bridge.gc_interval must be positive")
	}
	if m.FDB.Buckets <= 0 {
		return fmt.Errorf("fdb.buckets must be positive")
	}
	if m.API.Endpoint == "" {
		return fmt.Errorf("api.endpoint is required")
	}
	if m.API.MaxMessageSize == 0 {
		return fmt.Errorf("api.max_message_size must be positive")
	}

	return nil
}
