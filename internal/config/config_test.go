package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hostbridge/bridgectl/internal/testutil/testlog"
)

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	testlog.Start(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasePort != 23717 || cfg.PortRange != 100 {
		t.Fatalf("port defaults wrong: %+v", cfg)
	}
	if cfg.HeartbeatInterval() != 30*time.Second {
		t.Fatalf("heartbeat = %s", cfg.HeartbeatInterval())
	}
	if cfg.StalenessThreshold() != 120*time.Second {
		t.Fatalf("staleness = %s", cfg.StalenessThreshold())
	}
	if cfg.PeerQueryTimeout() != 120*time.Second {
		t.Fatalf("peer query timeout = %s", cfg.PeerQueryTimeout())
	}
	if cfg.BridgeQueueDepth != 16 || cfg.PeerParallelism != 8 {
		t.Fatalf("queue defaults wrong: %+v", cfg)
	}
}

func TestLoadOverridesAndBackfills(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "bridgectl.toml")
	body := `
instance_name = "studio-7"
base_port = 30000
execution_seconds = 5
diag_addr = "127.0.0.1:9090"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InstanceName != "studio-7" || cfg.BasePort != 30000 {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.ExecutionTimeout() != 5*time.Second {
		t.Fatalf("execution timeout = %s", cfg.ExecutionTimeout())
	}
	if cfg.DiagAddr != "127.0.0.1:9090" {
		t.Fatalf("diag addr = %q", cfg.DiagAddr)
	}
	// Unset fields still come from defaults.
	if cfg.PortRange != 100 || cfg.HeartbeatSeconds != 30 {
		t.Fatalf("defaults not backfilled: %+v", cfg)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	testlog.Start(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{name: "valid defaults", mutate: func(*Config) {}, wantSub: ""},
		{name: "base port too high", mutate: func(c *Config) { c.BasePort = 70000 }, wantSub: "base_port"},
		{name: "range overflows port space", mutate: func(c *Config) { c.BasePort = 65500; c.PortRange = 100 }, wantSub: "port_range"},
		{name: "zero queue depth", mutate: func(c *Config) { c.BridgeQueueDepth = 0 }, wantSub: "bridge_queue_depth"},
		{name: "zero parallelism", mutate: func(c *Config) { c.PeerParallelism = 0 }, wantSub: "peer_parallelism"},
		{name: "blank instance name", mutate: func(c *Config) { c.InstanceName = "  " }, wantSub: "instance_name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := Validate(cfg)
			if tc.wantSub == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantSub, err)
			}
		})
	}
}
