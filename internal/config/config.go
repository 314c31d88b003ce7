// Package config loads the optional nodesync TOML file.
//
// Only keys present in the file override defaults. Command-line flags are
// applied by the caller after Load and win over the file.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "nodesync.toml"

// Config is the resolved CLI configuration.
type Config struct {
	DB              string // journal database path
	LogLevel        string // debug | info | warn | error
	LogJSON         bool
	LogJournal      bool   // also log to the systemd journal
	Metrics         string // Prometheus textfile written after `run`; empty disables
	HandleAttribute string
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DB:              "nodesync.db",
		LogLevel:        "info",
		HandleAttribute: "ref",
	}
}

type fileConfig struct {
	DB              string `toml:"db"`
	LogLevel        string `toml:"log_level"`
	LogJSON         bool   `toml:"log_json"`
	LogJournal      bool   `toml:"log_journal"`
	Metrics         string `toml:"metrics"`
	HandleAttribute string `toml:"handle_attribute"`
}

// Load reads path over Default. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config: unknown keys: %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("db") {
		db := strings.TrimSpace(raw.DB)
		if db == "" {
			return Config{}, fmt.Errorf("load config: db must not be empty")
		}
		cfg.DB = db
	}

	if meta.IsDefined("log_level") {
		level := strings.ToLower(strings.TrimSpace(raw.LogLevel))
		if !validLevel(level) {
			return Config{}, fmt.Errorf("load config: invalid log_level %q", raw.LogLevel)
		}
		cfg.LogLevel = level
	}

	if meta.IsDefined("log_json") {
		cfg.LogJSON = raw.LogJSON
	}

	if meta.IsDefined("log_journal") {
		cfg.LogJournal = raw.LogJournal
	}

	if meta.IsDefined("metrics") {
		cfg.Metrics = strings.TrimSpace(raw.Metrics)
	}

	if meta.IsDefined("handle_attribute") {
		attr := strings.TrimSpace(raw.HandleAttribute)
		if attr == "" {
			return Config{}, fmt.Errorf("load config: handle_attribute must not be empty")
		}
		cfg.HandleAttribute = attr
	}

	return cfg, nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
