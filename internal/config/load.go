package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file in a single pass, validates it,
// and returns the resulting Config. Array-of-tables sections ([[sources]],
// [[destinations]], [[jobs]]) decode directly into their typed slices.
// Unknown keys are treated as fatal errors with "did you mean?" suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully",
		"path", path,
		"source_count", len(cfg.Sources),
		"destination_count", len(cfg.Destinations),
		"job_count", len(cfg.Jobs),
	)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values and no sources, destinations, or
// jobs. A config with no jobs fails Validate, so callers running an actual
// backup must supply a real config file; this path only helps commands that
// merely want defaults (e.g. "config show" before a file exists).
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", "path", path)

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// ResolveConfigPath determines the config file path using the three-layer
// priority: CLI flag > environment variable > platform default.
func ResolveConfigPath(env EnvOverrides, cliConfigPath string, logger *slog.Logger) string {
	cfgPath := DefaultConfigPath()
	source := "default"

	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
		source = "env"
	}

	if cliConfigPath != "" {
		cfgPath = cliConfigPath
		source = "cli"
	}

	logger.Debug("config path resolved", "path", cfgPath, "source", source)

	return cfgPath
}

// SelectJobs returns the jobs a run should execute. When name is non-empty,
// it returns exactly that job (enabled or not — an explicit selection
// overrides the enabled flag). Otherwise it returns every enabled job,
// erroring out if none are enabled.
func SelectJobs(cfg *Config, name string) ([]JobConfig, error) {
	if name != "" {
		for _, j := range cfg.Jobs {
			if j.Name == name {
				return []JobConfig{j}, nil
			}
		}

		return nil, fmt.Errorf("no job named %q configured", name)
	}

	var enabled []JobConfig

	for _, j := range cfg.Jobs {
		if j.Enabled {
			enabled = append(enabled, j)
		}
	}

	if len(enabled) == 0 {
		return nil, errors.New("no enabled jobs configured")
	}

	return enabled, nil
}
