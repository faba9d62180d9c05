// Package config loads the optional YAML host configuration for the
// ruleflow command. Command line flags and environment variables take
// precedence over the file.
package config

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSchedule = "@every 1m"
	DefaultPort     = 9091
	DefaultLogLevel = "info"
)

// Config is the host configuration shared by every subcommand.
type Config struct {
	DatabaseURL  string `yaml:"database_url"`
	LogLevel     string `yaml:"log_level"`
	EventBus     string `yaml:"event_bus"`
	KafkaBrokers string `yaml:"kafka_brokers"`
	RedisURL     string `yaml:"redis_url"`
	Schedule     string `yaml:"schedule"`
	Port         int    `yaml:"port"`
	Records      string `yaml:"records"`
	Definitions  string `yaml:"definitions"`
	Tracing      bool   `yaml:"tracing"`
}

func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Schedule: DefaultSchedule,
		Port:     DefaultPort,
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOrDefault returns the defaults when path is empty.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	return Load(path)
}

// Validate checks the values that would otherwise fail late, at the first
// scheduled run or when the server binds.
func (c Config) Validate() error {
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	switch c.EventBus {
	case "", "gochannel", "memory", "kafka":
	default:
		return fmt.Errorf("unsupported event bus %q", c.EventBus)
	}

	if c.EventBus == "kafka" && c.KafkaBrokers == "" {
		return fmt.Errorf("event bus kafka requires kafka_brokers")
	}

	return nil
}
