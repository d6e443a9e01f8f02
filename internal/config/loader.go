package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// Loader reads a YAML file, if present, and layers environment overrides
// and defaults on top (file > defaults, then env > file, per
// SPEC_FULL.md's ambient stack).
type Loader struct {
	path string
}

// NewLoader builds a Loader for the given file path. An empty path means
// "no file, defaults plus env only".
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads and validates configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file %s: %w", l.path, err)
			}
			log.WithComponent("config").Warn().Str("path", l.path).Msg("config file not found, using defaults and environment")
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", l.path, err)
			}
		}
	}

	cfg = applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
