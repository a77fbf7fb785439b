package shared

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ServerConfig is everything kv-server needs at startup.
//
// Precedence, lowest first: defaults, the YAML file (if any), KV_*
// environment variables, then command line flags applied by the caller.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"KV_ADDR"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"KV_MAX_BODY_BYTES"`
	MaxImagePixels  int64         `yaml:"max_image_pixels" env:"KV_MAX_IMAGE_PIXELS"`
	AdminToken      string        `yaml:"admin_token" env:"KV_ADMIN_TOKEN"`
	LogLevel        string        `yaml:"log_level" env:"KV_LOG_LEVEL"`
	LogFormat       string        `yaml:"log_format" env:"KV_LOG_FORMAT"`
	Backend         string        `yaml:"backend" env:"KV_BACKEND"`
	PNGCompression  string        `yaml:"png_compression" env:"KV_PNG_COMPRESSION"`
	Gzip            bool          `yaml:"gzip" env:"KV_GZIP"`
	Diagnostics     bool          `yaml:"diagnostics" env:"KV_ENABLE_DIAGNOSTICS"`
	OTelEndpoint    string        `yaml:"otel_endpoint" env:"KV_OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"KV_SHUTDOWN_TIMEOUT"`
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// DefaultServerConfig returns the built-in defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":3000",
		MaxBodyBytes:    2 << 20,
		MaxImagePixels:  25_000_000,
		AdminToken:      "secret",
		LogLevel:        "info",
		LogFormat:       "text",
		Backend:         BackendMemory,
		PNGCompression:  "default",
		Gzip:            true,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadServerConfig builds the config from defaults, the optional YAML file
// at path and the environment.
func LoadServerConfig(path string) (*ServerConfig, error) {
	c := DefaultServerConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the server cannot run with.
func (c *ServerConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, fmt.Errorf("max_image_pixels must be positive, got %d", c.MaxImagePixels))
	}
	if c.AdminToken == "" {
		errs = append(errs, errors.New("admin_token must not be empty"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("backend must be %s or %s, got %q", BackendMemory, BackendSQLite, c.Backend))
	}
	switch strings.ToLower(strings.TrimSpace(c.PNGCompression)) {
	case "", "default", "none", "speed", "best":
	default:
		errs = append(errs, fmt.Errorf("png_compression must be default, none, speed or best, got %q", c.PNGCompression))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}
