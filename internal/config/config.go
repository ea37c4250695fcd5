// Package config loads application configuration from environment
// variables (prefix HOSPADMIN) merged with an optional YAML file.
// Environment variables take precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"hospadmin/internal/security"
)

// EnvPrefix is the environment variable prefix for all settings.
const EnvPrefix = "HOSPADMIN"

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	License  LicenseConfig  `yaml:"license" envconfig:"LICENSE"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains request-level security configuration.
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for license
// activation attempts.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"5"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"10"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// LicenseConfig contains the license subsystem configuration. The shared
// secret is injected here, never held as a package-level constant, and can
// come either in the clear (SECRET_KEY) or from a sealed file plus
// passphrase.
type LicenseConfig struct {
	SecretKey        string        `yaml:"secret_key" envconfig:"SECRET_KEY"`
	SecretFile       string        `yaml:"secret_file" envconfig:"SECRET_FILE"`
	SecretPassphrase string        `yaml:"secret_passphrase" envconfig:"SECRET_PASSPHRASE"`
	StateFile        string        `yaml:"state_file" envconfig:"STATE_FILE" default:"activation.json"`
	OutputDir        string        `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"licenses"`
	CacheTTL         time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"5m"`
}

// Load loads configuration from environment variables and, when present,
// the YAML file named by HOSPADMIN_CONFIG_FILE (default config.yaml).
// Environment variables and tag defaults win; the file supplies values the
// environment leaves empty.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := os.Getenv(EnvPrefix + "_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	if data, err := os.ReadFile(configFile); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
		cfg.mergeFile(&fileCfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// mergeFile fills in settings the environment left empty. Only fields
// without tag defaults can come from the file; defaulted fields are
// already populated by envconfig.
func (c *Config) mergeFile(file *Config) {
	if c.License.SecretKey == "" {
		c.License.SecretKey = file.License.SecretKey
	}
	if c.License.SecretFile == "" {
		c.License.SecretFile = file.License.SecretFile
	}
	if c.License.SecretPassphrase == "" {
		c.License.SecretPassphrase = file.License.SecretPassphrase
	}
}

// ResolveSecret returns the shared license secret, unsealing the secret
// file when one is configured.
func (c *Config) ResolveSecret() (string, error) {
	if c.License.SecretKey != "" {
		return c.License.SecretKey, nil
	}
	if c.License.SecretFile != "" {
		secret, err := security.OpenSecretFile(c.License.SecretFile, c.License.SecretPassphrase)
		if err != nil {
			return "", fmt.Errorf("resolve license secret: %w", err)
		}
		return secret, nil
	}
	return "", fmt.Errorf("no license secret configured: set %s_LICENSE_SECRET_KEY or %s_LICENSE_SECRET_FILE", EnvPrefix, EnvPrefix)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.License.StateFile == "" {
		return fmt.Errorf("license state file path cannot be empty")
	}
	if c.License.SecretFile != "" && c.License.SecretPassphrase == "" {
		return fmt.Errorf("license secret file configured without a passphrase")
	}
	return nil
}
