// Copyright 2025 The Doclens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the doclens configuration model and its YAML
// loader. Every section follows the same contract: SetDefaults fills
// omitted fields, Validate rejects impossible ones, and the loader runs
// both after expanding ${VAR} references against the environment.
package config

import "fmt"

// Config is the root configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server,omitempty"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Database configures durable storage for credits and guest quotas.
	// Omitted means in-memory stores (development only).
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Auth configures bearer token validation.
	Auth *AuthConfig `yaml:"auth,omitempty"`

	// Admission configures rate limits, credit cost, and guest quota.
	Admission AdmissionConfig `yaml:"admission,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format is "compact" or "text".
	Format string `yaml:"format,omitempty"`

	// Output is a file path, or empty for stderr.
	Output string `yaml:"output,omitempty"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	if c.Database != nil {
		c.Database.SetDefaults()
	}
	if c.Auth != nil {
		c.Auth.SetDefaults()
	}
	c.Admission.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Admission.Validate(); err != nil {
		return fmt.Errorf("admission: %w", err)
	}
	return nil
}

// SetDefaults applies logging defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "compact"
	}
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "compact", "text":
	default:
		return fmt.Errorf("invalid format %q (valid: compact, text)", c.Format)
	}
	return nil
}

// DefaultConfig returns the zero-config setup: in-memory stores, guest
// access only, defaults everywhere.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
