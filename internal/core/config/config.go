// Package config loads and validates the warehouse loader configuration from
// defaults, an optional YAML file, and DWH_-prefixed environment variables,
// in that precedence order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Snapshot backends.
const (
	BackendFilesystem = "filesystem"
	BackendGCS        = "gcs"
)

// Config is the top-level application config.
type Config struct {
	Warehouse WarehouseConfig `koanf:"warehouse"`
	Snapshots SnapshotsConfig `koanf:"snapshots"`
	Refresh   RefreshConfig   `koanf:"refresh"`
}

type WarehouseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type SnapshotsConfig struct {
	Backend string `koanf:"backend"` // filesystem | gcs
	Root    string `koanf:"root"`    // filesystem backend root directory
	Bucket  string `koanf:"bucket"`  // gcs backend bucket name

	// SourcesPath optionally points at a YAML file overriding the default
	// entity-to-prefix source mapping.
	SourcesPath string `koanf:"sources_path"`
}

type RefreshConfig struct {
	Parallel    bool   `koanf:"parallel"`
	DedupFacts  bool   `koanf:"dedup_facts"`
	RunInterval string `koanf:"run_interval"` // parsed and validated on startup
}

// Interval returns the parsed scheduled-mode run interval. Validate has
// already checked it parses.
func (c RefreshConfig) Interval() time.Duration {
	interval, _ := time.ParseDuration(c.RunInterval)
	return interval
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Warehouse.DSN) == "" {
		return fmt.Errorf("warehouse.dsn is required")
	}
	if c.Warehouse.Type != "" && c.Warehouse.Type != "postgres" {
		return fmt.Errorf("unsupported warehouse.type %q", c.Warehouse.Type)
	}
	if c.Warehouse.MaxOpenConns <= 0 {
		return fmt.Errorf("warehouse.max_open_conns must be > 0")
	}
	if c.Warehouse.MaxIdleConns <= 0 {
		return fmt.Errorf("warehouse.max_idle_conns must be > 0")
	}

	switch c.Snapshots.Backend {
	case BackendFilesystem:
		if strings.TrimSpace(c.Snapshots.Root) == "" {
			return fmt.Errorf("snapshots.root is required for the filesystem backend")
		}
	case BackendGCS:
		if strings.TrimSpace(c.Snapshots.Bucket) == "" {
			return fmt.Errorf("snapshots.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unsupported snapshots.backend %q (must be filesystem or gcs)", c.Snapshots.Backend)
	}

	interval, err := time.ParseDuration(c.Refresh.RunInterval)
	if err != nil {
		return fmt.Errorf("invalid refresh.run_interval %q: %w", c.Refresh.RunInterval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("refresh.run_interval must be > 0")
	}

	return nil
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"warehouse.type":           "postgres",
		"warehouse.dsn":            "",
		"warehouse.max_open_conns": 25,
		"warehouse.max_idle_conns": 25,
		"warehouse.auto_migrate":   true,
		"snapshots.backend":        BackendFilesystem,
		"snapshots.root":           "./snapshots",
		"snapshots.bucket":         "",
		"snapshots.sources_path":   "",
		"refresh.parallel":         true,
		"refresh.dedup_facts":      false,
		"refresh.run_interval":     "1h",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("DWH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "DWH_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
