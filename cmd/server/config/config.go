// Package config provides configuration structures for the nlq server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/TFMV/nlq/pkg/services"
)

// Config represents the server configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`

	// HTTP API
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Document store
	Mongo MongoConfig `mapstructure:"mongo" yaml:"mongo" json:"mongo"`

	// Language model
	Model ModelConfig `mapstructure:"model" yaml:"model" json:"model"`

	// Translation pipeline
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Schema introspection
	Schema SchemaConfig `mapstructure:"schema" yaml:"schema" json:"schema"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth" json:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health" json:"health"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address" json:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// MongoConfig represents document store configuration.
type MongoConfig struct {
	URI            string        `mapstructure:"uri" yaml:"uri" json:"uri"`
	Database       string        `mapstructure:"database" yaml:"database" json:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout" yaml:"query_timeout" json:"query_timeout"`
}

// ModelConfig represents language model configuration.
type ModelConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider" json:"provider"` // ollama, genai
	URL             string        `mapstructure:"url" yaml:"url" json:"url"`
	Name            string        `mapstructure:"name" yaml:"name" json:"name"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	Warmup          bool          `mapstructure:"warmup" yaml:"warmup" json:"warmup"`
	WarmupTimeout   time.Duration `mapstructure:"warmup_timeout" yaml:"warmup_timeout" json:"warmup_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout" yaml:"generate_timeout" json:"generate_timeout"`
}

// PipelineConfig represents translation pipeline configuration.
type PipelineConfig struct {
	MaxInputLength     int      `mapstructure:"max_input_length" yaml:"max_input_length" json:"max_input_length"`
	ForbiddenOperators []string `mapstructure:"forbidden_operators" yaml:"forbidden_operators" json:"forbidden_operators"`
	StrictCollections  bool     `mapstructure:"strict_collections" yaml:"strict_collections" json:"strict_collections"`
	RepairJSON         bool     `mapstructure:"repair_json" yaml:"repair_json" json:"repair_json"`
}

// SchemaConfig represents schema introspection configuration.
type SchemaConfig struct {
	SampleSize int           `mapstructure:"sample_size" yaml:"sample_size" json:"sample_size"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" json:"cache_ttl"`
}

// RateLimitConfig represents per-client rate limiting.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst" json:"burst"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	JWTAuth JWTAuthConfig `mapstructure:"jwt" yaml:"jwt" json:"jwt"`
}

// JWTAuthConfig represents JWT authentication configuration.
type JWTAuthConfig struct {
	Secret   string `mapstructure:"secret" yaml:"secret" json:"-"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer" json:"issuer"`
	Audience string `mapstructure:"audience" yaml:"audience" json:"audience"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address string `mapstructure:"address" yaml:"address" json:"address"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}

// HealthConfig represents gRPC health check configuration.
type HealthConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address  string        `mapstructure:"address" yaml:"address" json:"address"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// Validate fills unset values with defaults and rejects invalid
// combinations.
func (c *Config) Validate() error {
	d := DefaultConfig()

	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Mongo.URI == "" {
		c.Mongo.URI = d.Mongo.URI
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = d.Mongo.Database
	}
	if c.Mongo.ConnectTimeout <= 0 {
		c.Mongo.ConnectTimeout = d.Mongo.ConnectTimeout
	}
	if c.Mongo.QueryTimeout <= 0 {
		c.Mongo.QueryTimeout = d.Mongo.QueryTimeout
	}

	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))
	if c.Model.Provider == "" {
		c.Model.Provider = d.Model.Provider
	}
	switch c.Model.Provider {
	case "ollama":
		if c.Model.URL == "" {
			c.Model.URL = d.Model.URL
		}
		if c.Model.Name == "" {
			c.Model.Name = d.Model.Name
		}
	case "genai":
		if c.Model.APIKey == "" {
			return fmt.Errorf("genai provider requires an API key")
		}
	default:
		return fmt.Errorf("unsupported model provider: %s", c.Model.Provider)
	}
	if c.Model.Temperature < 0 {
		return fmt.Errorf("model temperature must not be negative")
	}
	if c.Model.WarmupTimeout <= 0 {
		c.Model.WarmupTimeout = d.Model.WarmupTimeout
	}
	if c.Model.GenerateTimeout <= 0 {
		c.Model.GenerateTimeout = d.Model.GenerateTimeout
	}

	if c.Pipeline.MaxInputLength <= 0 {
		c.Pipeline.MaxInputLength = d.Pipeline.MaxInputLength
	}
	if c.Pipeline.ForbiddenOperators == nil {
		c.Pipeline.ForbiddenOperators = d.Pipeline.ForbiddenOperators
	}
	if len(c.Pipeline.ForbiddenOperators) == 0 {
		return fmt.Errorf("forbidden operator list must not be empty")
	}

	if c.Schema.SampleSize <= 0 {
		c.Schema.SampleSize = d.Schema.SampleSize
	}
	if c.Schema.CacheTTL <= 0 {
		c.Schema.CacheTTL = d.Schema.CacheTTL
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			c.RateLimit.RequestsPerMinute = d.RateLimit.RequestsPerMinute
		}
		if c.RateLimit.Burst <= 0 {
			c.RateLimit.Burst = d.RateLimit.Burst
		}
	}

	if c.Auth.Enabled && c.Auth.JWTAuth.Secret == "" {
		return fmt.Errorf("JWT auth requires secret")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			c.Metrics.Address = d.Metrics.Address
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = d.Metrics.Path
		}
	}

	if c.Health.Enabled {
		if c.Health.Address == "" {
			c.Health.Address = d.Health.Address
		}
		if c.Health.Interval <= 0 {
			c.Health.Interval = d.Health.Interval
		}
	}

	return nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "nlq",
			ConnectTimeout: 10 * time.Second,
			QueryTimeout:   15 * time.Second,
		},
		Model: ModelConfig{
			Provider:        "ollama",
			URL:             "http://localhost:11434",
			Name:            "llama3",
			Temperature:     0,
			Warmup:          true,
			WarmupTimeout:   5 * time.Minute,
			GenerateTimeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxInputLength:     5000,
			ForbiddenOperators: append([]string(nil), services.DefaultForbiddenOperators...),
		},
		Schema: SchemaConfig{
			SampleSize: 10,
			CacheTTL:   5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled:  true,
			Address:  ":9091",
			Interval: 10 * time.Second,
		},
	}
}
