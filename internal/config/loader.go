package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.contentmesh/config.json
// Project: .contentmesh/config.json (relative to cwd)
func DefaultPaths() (global, project string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".contentmesh", "config.json"), filepath.Join(".contentmesh", "config.json"), nil
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*Config, error) {
	global, project, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(global, project)
}

// mergeConfigFile overlays the keys present in a JSON file onto base. Worker
// entries merge by id; lists replace.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if base.Workers == nil {
		base.Workers = map[string]WorkerConfig{}
	}
	return nil
}

// Validate rejects values the runtime cannot honor.
func (c *Config) Validate() error {
	var problems []string
	if c.Bus.RequestTimeoutMS <= 0 {
		problems = append(problems, "bus.request_timeout_ms must be positive")
	}
	if c.Queue.MaxRetries < 1 {
		problems = append(problems, "queue.max_retries must be at least 1")
	}
	if c.Queue.RetryInitialIntervalMS < 0 || c.Queue.RetryMaxIntervalMS < 0 || c.Queue.LeaseTimeoutMS < 0 {
		problems = append(problems, "queue intervals must not be negative")
	}
	if c.Queue.RetryInitialIntervalMS > 0 && c.Queue.RetryMultiplier < 1 {
		problems = append(problems, "queue.retry_multiplier must be at least 1")
	}
	if len(c.Pipeline.ExpectedOutputs) == 0 {
		problems = append(problems, "pipeline.expected_outputs must not be empty")
	}
	if c.Pipeline.Concurrency < 1 {
		problems = append(problems, "pipeline.concurrency must be at least 1")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("unknown log.format %q", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
