package app

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "GLOWLOGY_"

// LoadConfig loads Config from GLOWLOGY_* environment variables with defaults
// and validates it.
func LoadConfig() (Config, error) {
	return loadConfig(nil)
}

// loadConfig parses from environ when non-nil, the process environment otherwise.
func loadConfig(environ map[string]string) (Config, error) {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
