// Package config loads service configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Artifact store backends
const (
	StorePostgres = "postgres"
	StoreFile     = "file"
	StoreMemory   = "memory"
)

// Config is the full service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Engine    EngineConfig    `yaml:"engine"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig configures PostgreSQL. An empty URL runs without a database.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig configures token issuing
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// EngineConfig configures the cross-validation engine
type EngineConfig struct {
	AbsoluteTolerance    float64 `yaml:"absolute_tolerance"`
	RelativeTolerance    float64 `yaml:"relative_tolerance"`
	Workers              int     `yaml:"workers"`
	SkipSchemaValidation bool    `yaml:"skip_schema_validation"`
}

// ArtifactsConfig selects where artifacts are persisted
type ArtifactsConfig struct {
	Store string `yaml:"store"`
	Dir   string `yaml:"dir"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, then validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	var c Config
	var set tolerancesSet

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&c); err != nil {
		return nil, err
	}
	applyDefaults(&c)

	// An explicit zero must reach Validate instead of becoming the default.
	if set.Engine.Absolute != nil {
		c.Engine.AbsoluteTolerance = *set.Engine.Absolute
	}
	if set.Engine.Relative != nil {
		c.Engine.RelativeTolerance = *set.Engine.Relative
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &c, nil
}

// tolerancesSet records which tolerances the file states, zero included.
type tolerancesSet struct {
	Engine struct {
		Absolute *float64 `yaml:"absolute_tolerance"`
		Relative *float64 `yaml:"relative_tolerance"`
	} `yaml:"engine"`
}

func applyEnv(c *Config) error {
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		c.Server.Port = v
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
	}
	if v, ok := os.LookupEnv("JWT_SECRET"); ok && v != "" {
		c.Auth.JWTSecret = v
	}
	if v, ok := os.LookupEnv("ARTIFACT_DIR"); ok && v != "" {
		c.Artifacts.Dir = v
	}
	if v, ok := os.LookupEnv("ARTIFACT_STORE"); ok && v != "" {
		c.Artifacts.Store = v
	}
	if v, ok := os.LookupEnv("CROSSVAL_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CROSSVAL_WORKERS %q: %w", v, err)
		}
		c.Engine.Workers = n
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:*", "https://*"}
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "change-me-in-production"
	}
	if c.Auth.TokenDuration == 0 {
		c.Auth.TokenDuration = 24 * time.Hour
	}
	if c.Engine.AbsoluteTolerance == 0 {
		c.Engine.AbsoluteTolerance = 0.001
	}
	if c.Engine.RelativeTolerance == 0 {
		c.Engine.RelativeTolerance = 0.001
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 1
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "./artifacts"
	}
	if c.Artifacts.Store == "" {
		if c.Database.URL != "" {
			c.Artifacts.Store = StorePostgres
		} else {
			c.Artifacts.Store = StoreFile
		}
	}
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Engine.AbsoluteTolerance <= 0 || c.Engine.RelativeTolerance <= 0 {
		return errors.New("tolerances must be greater than zero")
	}
	if c.Engine.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if c.Auth.TokenDuration < 0 {
		return errors.New("token duration must not be negative")
	}

	switch c.Artifacts.Store {
	case StoreFile, StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return errors.New("postgres artifact store requires database.url")
		}
	default:
		return fmt.Errorf("unknown artifact store %q", c.Artifacts.Store)
	}

	return nil
}
