package main

import (
	"fmt"

	"github.com/pelletier/go-toml"
)

// Config is the daemon configuration, loaded from a toml file.
// Zero values fall back to defaults at wiring time.
type Config struct {
	// Addr is the HTTP listen address. The THREADSHELL_ADDR
	// environment variable and the -addr flag override it.
	Addr string `toml:"addr"`

	// Cores sizes the abstract core pool; 0 means host parallelism.
	Cores int `toml:"cores"`

	// Workers sizes the dispatch pool; 0 means host parallelism.
	Workers int `toml:"workers"`

	// MaxConcurrent caps simultaneously running jobs; 0 keeps the
	// default of twice the core pool.
	MaxConcurrent int `toml:"max_concurrent"`

	// Policy selects the queue ordering: priority, shortest-first,
	// round-robin or fair-share.
	Policy string `toml:"policy"`

	// HistoryLimit bounds the completed-job retention window.
	HistoryLimit int `toml:"history_limit"`

	// CoreAffinity enables all-or-nothing multi-slot reservations.
	CoreAffinity bool `toml:"core_affinity"`

	// EventLog selects the lifecycle event sink: none, csv or sqlite.
	EventLog string `toml:"event_log"`

	// EventLogPath is the sink's file path.
	EventLogPath string `toml:"event_log_path"`
}

func defaultConfig() Config {
	return Config{
		Addr:         "localhost:8282",
		EventLog:     "csv",
		EventLogPath: "logs/job_log.csv",
	}
}

// loadConfig reads path into a Config. An empty path yields defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	tree, err := toml.LoadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := tree.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
