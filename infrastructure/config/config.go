// Package config loads application configuration from defaults, an
// optional YAML file, and environment variables, in that order. The
// environment always wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	Development = "development"
	Production  = "production"
)

// Config holds all application configuration
type Config struct {
	Environment string       `yaml:"environment"`
	LogLevel    string       `yaml:"log_level"`
	Server      ServerConfig `yaml:"server"`
	Database    Database     `yaml:"database"`
	Auth        Auth         `yaml:"auth"`
	Realtime    Realtime     `yaml:"realtime"`
	Features    Features     `yaml:"features"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Database configures the persistence layer. When InMemory is set the
// DynamoDB settings are ignored and state lives in process memory.
type Database struct {
	InMemory  bool   `yaml:"in_memory"`
	Region    string `yaml:"region"`
	TableName string `yaml:"table_name"`
	Endpoint  string `yaml:"endpoint"`
}

// Auth configures JWT validation
type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTIssuer string        `yaml:"jwt_issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Realtime configures websocket delivery and advisory locking
type Realtime struct {
	DebounceWindow     time.Duration `yaml:"debounce_window"`
	MaxSessionsPerUser int           `yaml:"max_sessions_per_user"`
	LockTTL            time.Duration `yaml:"lock_ttl"`
}

// Features holds runtime-toggleable flags
type Features struct {
	EnableCORS    bool `yaml:"enable_cors"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// Default returns the development defaults
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{
			InMemory:  false,
			Region:    "us-west-2",
			TableName: "flopods",
		},
		Auth: Auth{
			JWTIssuer: "flopods-backend",
			TokenTTL:  24 * time.Hour,
		},
		Realtime: Realtime{
			DebounceWindow:     500 * time.Millisecond,
			MaxSessionsPerUser: 10,
			LockTTL:            90 * time.Second,
		},
		Features: Features{
			EnableCORS:    true,
			EnableMetrics: true,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.LogLevel, "LOG_LEVEL")

	setString(&c.Server.Address, "SERVER_ADDRESS")
	setDuration(&c.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT")

	setBool(&c.Database.InMemory, "DB_IN_MEMORY")
	setString(&c.Database.Region, "AWS_REGION")
	setString(&c.Database.TableName, "TABLE_NAME")
	setString(&c.Database.Endpoint, "DYNAMODB_ENDPOINT")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.JWTIssuer, "JWT_ISSUER")
	setDuration(&c.Auth.TokenTTL, "JWT_TOKEN_TTL")

	setDuration(&c.Realtime.DebounceWindow, "WS_DEBOUNCE_WINDOW")
	setInt(&c.Realtime.MaxSessionsPerUser, "WS_MAX_SESSIONS")
	setDuration(&c.Realtime.LockTTL, "LOCK_TTL")

	setBool(&c.Features.EnableCORS, "ENABLE_CORS")
	setBool(&c.Features.EnableMetrics, "ENABLE_METRICS")
}

// Validate checks that required settings are present
func (c *Config) Validate() error {
	if c.Environment == Production {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.Database.InMemory {
			return fmt.Errorf("the in-memory store is not allowed in production")
		}
		if c.Database.TableName == "" {
			return fmt.Errorf("TABLE_NAME is required in production")
		}
	}
	if c.Realtime.LockTTL <= 0 {
		return fmt.Errorf("lock TTL must be positive")
	}
	return nil
}

// IsDevelopment reports whether the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction reports whether the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1" || v == "yes"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
