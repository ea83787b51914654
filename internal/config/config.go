// Package config handles loading and validating pool target configuration
// from a YAML file.
package config

import (
	"fmt"
	"os"

	"github.com/arannis/docpool/pkg/target"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure: a list of named pool targets.
type Config struct {
	Targets []target.Target
}

// fileConfig mirrors the YAML structure of the config file on disk.
type fileConfig struct {
	Targets []target.Target `yaml:"targets"`
}

// Load reads and parses a targets configuration file, applying defaults and
// validating every target.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg := &Config{Targets: fc.Targets}
	if err := cfg.validateNames(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	for i := range cfg.Targets {
		cfg.Targets[i].ApplyDefaults()
		if err := cfg.Targets[i].Validate(); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}

	return cfg, nil
}

// validateNames checks mandatory top-level fields before per-target defaults
// and validation run.
func (c *Config) validateNames() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target must be configured")
	}
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d].name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("targets[%d]: duplicate target name %q", i, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// TargetByName returns the target configuration with the given name.
func (c *Config) TargetByName(name string) (*target.Target, bool) {
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i], true
		}
	}
	return nil, false
}
