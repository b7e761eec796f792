// Package config loads gantryd's YAML configuration and watches it for
// runtime log-level changes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownGraceMS int    `yaml:"shutdown_grace_ms"`
}

type DatabaseConfig struct {
	Path         string `yaml:"path"`
	BusyRetries  int    `yaml:"busy_retries"`
	LockFilePath string `yaml:"lock_file_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8720",
			ShutdownGraceMS: 5000,
		},
		Database: DatabaseConfig{
			Path:        "gantry.db",
			BusyRetries: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file, filling unset fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = Default().Server.Addr
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = Default().Database.Path
	}
	if cfg.Database.BusyRetries <= 0 {
		cfg.Database.BusyRetries = Default().Database.BusyRetries
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = Default().Logging.Level
	}
	return cfg, nil
}
