package boc

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v2"
)

// Config carries the pool's construction knobs. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// Cores is the number of workers, one OS thread each.
	Cores int `yaml:"cores"`

	// Fairness plants the per-core token that forces a periodic steal
	// attempt even on a busy core.
	Fairness bool `yaml:"fairness"`

	// DetectLeaks tracks cown lifetimes and makes Run panic if any
	// cown outlives the pool.
	DetectLeaks bool `yaml:"detect_leaks"`
}

// DefaultConfig returns the production defaults: one worker per
// available CPU, fairness on, leak detection off.
func DefaultConfig() Config {
	return Config{
		Cores:    runtime.NumCPU(),
		Fairness: true,
	}
}

// ReadConfig decodes a YAML config, filling unset fields from the
// defaults.
func ReadConfig(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("boc: parsing config: %w", err)
	}
	if cfg.Cores <= 0 {
		return Config{}, fmt.Errorf("boc: config needs at least one core, have %d", cfg.Cores)
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return ReadConfig(f)
}
