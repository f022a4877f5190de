// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from
// switchboard.yaml.
type Config struct {
	RegistryDir string          `yaml:"registry_dir"`
	Socket      string          `yaml:"socket"`
	Archive     ArchiveConfig   `yaml:"archive"`
	Retention   RetentionConfig `yaml:"retention"`
	Dashboard   DashboardConfig `yaml:"dashboard"`
	Relay       RelayConfig     `yaml:"relay"`
	Sessions    []SessionConfig `yaml:"sessions"`
}

// ArchiveConfig controls where pruned messages are kept. An empty path
// disables archiving.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// RetentionConfig controls the scheduled prune pass.
type RetentionConfig struct {
	MaxAge   string `yaml:"max_age"`  // Go duration string, e.g. "168h"
	Schedule string `yaml:"schedule"` // 5-field cron expression
}

// MaxAgeDuration returns the parsed retention age. Config validation
// guarantees it parses.
func (r RetentionConfig) MaxAgeDuration() time.Duration {
	d, _ := time.ParseDuration(r.MaxAge)
	return d
}

// DashboardConfig holds the read-only HTTP API settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// RelayConfig controls best-effort push of bus traffic to chat platforms.
type RelayConfig struct {
	MinPriority string        `yaml:"min_priority"`
	Command     string        `yaml:"command"` // shell command template
	Slack       SlackConfig   `yaml:"slack"`
	Discord     DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack relay credentials.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// DiscordConfig holds Discord relay credentials.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// SessionConfig is an agency session template used by `sb start`: one tmux
// session with one window per agent.
type SessionConfig struct {
	Name    string   `yaml:"name"`
	Windows []string `yaml:"windows"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.RegistryDir == "" {
		c.RegistryDir = "registry"
	}
	if c.Socket == "" {
		c.Socket = "/tmp/switchboard.sock"
	}
	if c.Retention.MaxAge == "" {
		c.Retention.MaxAge = "168h"
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "30 3 * * *"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Relay.MinPriority == "" {
		c.Relay.MinPriority = "high"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	if d, err := time.ParseDuration(c.Retention.MaxAge); err != nil {
		errs = append(errs, fmt.Sprintf("retention.max_age %q is not a duration", c.Retention.MaxAge))
	} else if d <= 0 {
		errs = append(errs, "retention.max_age must be positive")
	}

	switch c.Relay.MinPriority {
	case "high", "medium", "low":
	default:
		errs = append(errs, fmt.Sprintf("relay.min_priority %q must be high, medium or low", c.Relay.MinPriority))
	}

	seen := make(map[string]bool)
	for i, s := range c.Sessions {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sessions[%d].name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("sessions[%d].name %q is duplicated", i, s.Name))
		}
		seen[s.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
