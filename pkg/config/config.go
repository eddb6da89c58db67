// Package config loads the service configuration from YAML with struct-tag
// defaults and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"places-cache/pkg/api"
	"places-cache/pkg/cleanup"
	"places-cache/pkg/logging"
	"places-cache/pkg/lookup"
	"places-cache/pkg/places"
	"places-cache/pkg/store"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Logging logging.Config   `yaml:"logging"`
	Server  api.ServerConfig `yaml:"server"`
	Places  places.Config    `yaml:"places"`
	Lookup  lookup.Config    `yaml:"lookup"`
	Cleanup cleanup.Config   `yaml:"cleanup"`
	Store   store.Config     `yaml:"store"`
	Metrics MetricsConfig    `yaml:"metrics"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}
	return cfg, nil
}

// Load fills defaults, overlays the YAML file at path (if non-empty) and
// applies environment overrides. The result is validated.
//
// Defaults are applied first so an explicit false or zero in the file is kept.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment via getenv.
func (c *Config) ApplyEnv(getenv func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := getenv(name); ok && v != "" {
			*dst = v
		}
	}

	str("PLACES_API_KEY", &c.Places.APIKey)
	str("GOOGLE_PLACES_API_KEY", &c.Places.APIKey)
	str("PLACES_BASE_URL", &c.Places.BaseURL)
	str("STORE_DRIVER", &c.Store.Driver)
	str("DATABASE_URL", &c.Store.DSN)
	str("REDIS_ADDR", &c.Store.Redis.Addr)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	str("CLEANUP_SCHEDULE", &c.Cleanup.Schedule)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	if v, ok := getenv("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("config: PORT %q is not a number", v)
		}
		c.Server.Address = ":" + v
	}
	if v, ok := getenv("LOG_DEV"); ok && v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: LOG_DEV %q: %w", v, err)
		}
		c.Logging.Development = dev
		if dev {
			c.Logging.Format = "console"
			c.Logging.Level = "debug"
		}
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("config: server.address is required"))
	}
	if c.Places.Timeout <= 0 {
		errs = append(errs, errors.New("config: places.timeout must be positive"))
	}
	if err := c.Lookup.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Cleanup.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
