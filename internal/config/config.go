// Package config loads the JSON runtime configuration shared by the
// CLI and any embedding service.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"sheetdb/internal/store"
)

// Config is the full runtime configuration.
type Config struct {
	Store        store.Config `json:"store"`
	Spreadsheets Spreadsheets `json:"spreadsheets"`
	Cache        Cache        `json:"cache"`
	Datadog      *Datadog     `json:"datadog,omitempty"`
}

// Spreadsheets maps the symbolic spreadsheet names used by dataset and
// report definitions to backend spreadsheet IDs.
type Spreadsheets struct {
	Orders    string `json:"orders"`
	Reporting string `json:"reporting"`
}

// Cache tunes the read cache. TTLSeconds zero means the default.
type Cache struct {
	TTLSeconds int  `json:"ttl_seconds"`
	Disabled   bool `json:"disabled"`
}

// Datadog enables the metrics backend when present.
type Datadog struct {
	JobName      string `json:"job_name"`
	Tags         string `json:"tags"`
	FlushSeconds int    `json:"flush_seconds"`
}

// ID resolves a symbolic spreadsheet name. Unknown names resolve to
// themselves so callers can pass raw spreadsheet IDs directly.
func (s Spreadsheets) ID(name string) string {
	switch name {
	case "orders":
		return s.Orders
	case "reporting":
		return s.Reporting
	default:
		return name
	}
}

// Load reads and validates a config file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	// DSNs routinely carry credentials; let them come from the
	// environment instead of the checked-in file.
	cfg.Store.DSN = os.ExpandEnv(cfg.Store.DSN)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configs that cannot produce a working system.
func (c Config) Validate() error {
	if c.Store.Kind == "" {
		return fmt.Errorf("config: store.kind is required (one of %v)", store.Kinds())
	}
	if c.Store.Kind != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required for kind %q", c.Store.Kind)
	}
	if c.Spreadsheets.Orders == "" {
		return fmt.Errorf("config: spreadsheets.orders is required")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config: cache.ttl_seconds must not be negative")
	}
	if c.Datadog != nil && c.Datadog.FlushSeconds < 0 {
		return fmt.Errorf("config: datadog.flush_seconds must not be negative")
	}
	return nil
}
