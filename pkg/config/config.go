// Package config loads and validates engine configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/pilot/pkg/security"
	"github.com/entrhq/pilot/pkg/types"
)

// EngineConfig is the full configuration for one automation engine.
type EngineConfig struct {
	// Headless controls whether the browser runs without a window.
	Headless bool `yaml:"headless"`

	// MaxConcurrency bounds how many tasks the queue admits at once.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Timeout is the default task timeout.
	Timeout types.Duration `yaml:"timeout"`

	// Retries is the default per-task step retry budget.
	Retries int `yaml:"retries"`

	// Security configures the task gate.
	Security security.Config `yaml:"security"`

	// Performance configures request tracking and metrics.
	Performance types.PerformanceProfile `yaml:"performance"`
}

// Default returns the configuration used when no file is supplied.
func Default() EngineConfig {
	return EngineConfig{
		Headless:       true,
		MaxConcurrency: 1,
		Timeout:        types.Duration(types.DefaultTaskTimeout),
		Retries:        types.DefaultMaxRetries,
		Security: security.Config{
			EnableInputValidation: true,
		},
		Performance: types.PerformanceProfile{
			TrackRequests:        true,
			SlowRequestThreshold: types.Duration(time.Second),
		},
	}
}

// Load reads a YAML config file over the defaults and validates the
// result.
func Load(path string) (EngineConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c EngineConfig) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	return nil
}
