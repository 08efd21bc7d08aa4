package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Artifact ArtifactConfig `yaml:"artifacts"`
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects and configures the backing store.
type StorageConfig struct {
	// Type is "memory", "postgres" or "firestore".
	Type             string        `yaml:"type"`
	ConnectionString string        `yaml:"connectionString"`
	ProjectID        string        `yaml:"projectId"`
	Timeout          time.Duration `yaml:"timeout"`
	Retries          int           `yaml:"retries"`
}

// RedisConfig enables the fallback event store and the outcome notifier.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// ArtifactConfig holds object storage settings.
type ArtifactConfig struct {
	PublicBaseURL string `yaml:"publicBaseUrl"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig holds reconciliation heuristics.
type EngineConfig struct {
	LandlordKeywords []string `yaml:"landlordKeywords"`
	DefaultRole      string   `yaml:"defaultRole"`
}

func (c *Config) defaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 5 * time.Second
	}
	if c.Storage.Retries == 0 {
		c.Storage.Retries = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.ConnectionString == "" {
			return fmt.Errorf("storage.connectionString is required for postgres")
		}
	case "firestore":
		if c.Storage.ProjectID == "" {
			return fmt.Errorf("storage.projectId is required for firestore")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	return nil
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
