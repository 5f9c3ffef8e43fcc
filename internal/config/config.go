package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config drives one instance: where its shared files live, which ports the
// control listener may claim, and the subsystem timeouts.
type Config struct {
	InstanceName string `toml:"instance_name"`
	DataDir      string `toml:"data_dir"`

	BasePort  int `toml:"base_port"`
	PortRange int `toml:"port_range"`

	HeartbeatSeconds int `toml:"heartbeat_seconds"`
	StalenessSeconds int `toml:"staleness_seconds"`
	HandshakeSeconds int `toml:"handshake_seconds"`
	ExecutionSeconds int `toml:"execution_seconds"`
	PeerQuerySeconds int `toml:"peer_query_seconds"`

	BridgeQueueDepth int `toml:"bridge_queue_depth"`
	PeerParallelism  int `toml:"peer_parallelism"`

	DiagAddr        string   `toml:"diag_addr"`
	DiagCorsOrigins []string `toml:"diag_cors_origins"`
}

func Default() Config {
	return Config{
		InstanceName:     "bridgectl",
		DataDir:          defaultDataDir(),
		BasePort:         23717,
		PortRange:        100,
		HeartbeatSeconds: 30,
		StalenessSeconds: 120,
		HandshakeSeconds: 10,
		ExecutionSeconds: 30,
		PeerQuerySeconds: 120,
		BridgeQueueDepth: 16,
		PeerParallelism:  8,
		DiagAddr:         "",
	}
}

// Load reads a TOML config, applying defaults to any unset field. An empty
// path yields the defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.InstanceName) == "" {
		cfg.InstanceName = def.InstanceName
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.BasePort == 0 {
		cfg.BasePort = def.BasePort
	}
	if cfg.PortRange == 0 {
		cfg.PortRange = def.PortRange
	}
	if cfg.HeartbeatSeconds == 0 {
		cfg.HeartbeatSeconds = def.HeartbeatSeconds
	}
	if cfg.StalenessSeconds == 0 {
		cfg.StalenessSeconds = def.StalenessSeconds
	}
	if cfg.HandshakeSeconds == 0 {
		cfg.HandshakeSeconds = def.HandshakeSeconds
	}
	if cfg.ExecutionSeconds == 0 {
		cfg.ExecutionSeconds = def.ExecutionSeconds
	}
	if cfg.PeerQuerySeconds == 0 {
		cfg.PeerQuerySeconds = def.PeerQuerySeconds
	}
	if cfg.BridgeQueueDepth == 0 {
		cfg.BridgeQueueDepth = def.BridgeQueueDepth
	}
	if cfg.PeerParallelism == 0 {
		cfg.PeerParallelism = def.PeerParallelism
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.InstanceName) == "" {
		return fmt.Errorf("config missing instance_name")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config missing data_dir")
	}
	if cfg.BasePort <= 0 || cfg.BasePort > 65535 {
		return fmt.Errorf("config base_port out of range: %d", cfg.BasePort)
	}
	if cfg.PortRange <= 0 || cfg.BasePort+cfg.PortRange > 65535 {
		return fmt.Errorf("config port_range invalid: %d", cfg.PortRange)
	}
	if cfg.BridgeQueueDepth < 1 {
		return fmt.Errorf("config bridge_queue_depth must be positive")
	}
	if cfg.PeerParallelism < 1 {
		return fmt.Errorf("config peer_parallelism must be positive")
	}
	return nil
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func (c Config) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessSeconds) * time.Second
}

func (c Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeSeconds) * time.Second
}

func (c Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionSeconds) * time.Second
}

func (c Config) PeerQueryTimeout() time.Duration {
	return time.Duration(c.PeerQuerySeconds) * time.Second
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bridgectl"
	}
	return home + string(os.PathSeparator) + ".bridgectl"
}
