// ABOUTME: Configuration loading and parsing for honeypot-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete honeypot-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Model    ModelConfig    `yaml:"model"`
	Report   ReportConfig   `yaml:"report"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds inbound API authentication configuration.
// An empty key disables authentication, which is only sensible for
// local development.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// ModelConfig holds the Gemini backend configuration
type ModelConfig struct {
	APIKey   string        `yaml:"api_key"`
	Name     string        `yaml:"name"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// ReportConfig holds the intelligence sink configuration
type ReportConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`
	RetryCooldown time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw       string `yaml:"timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
	RetryCooldownRaw string `yaml:"retry_cooldown"`
}

// DatabaseConfig holds the report ledger database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in the fields a minimal config may omit
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Model.Name == "" {
		c.Model.Name = "gemini-3-flash-preview"
	}
	if c.Report.SweepInterval == 0 {
		c.Report.SweepInterval = time.Minute
	}
	if c.Report.RetryCooldown == 0 {
		c.Report.RetryCooldown = 5 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Model.APIKey == "" {
		return fmt.Errorf("model.api_key is required")
	}

	if c.Report.Endpoint == "" {
		return fmt.Errorf("report.endpoint is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Model.TimeoutRaw != "" {
		cfg.Model.Timeout, err = time.ParseDuration(cfg.Model.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing model.timeout %q: %w", cfg.Model.TimeoutRaw, err)
		}
	}

	if cfg.Report.TimeoutRaw != "" {
		cfg.Report.Timeout, err = time.ParseDuration(cfg.Report.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing report.timeout %q: %w", cfg.Report.TimeoutRaw, err)
		}
	}

	if cfg.Report.SweepIntervalRaw != "" {
		cfg.Report.SweepInterval, err = time.ParseDuration(cfg.Report.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing report.sweep_interval %q: %w", cfg.Report.SweepIntervalRaw, err)
		}
	}

	if cfg.Report.RetryCooldownRaw != "" {
		cfg.Report.RetryCooldown, err = time.ParseDuration(cfg.Report.RetryCooldownRaw)
		if err != nil {
			return fmt.Errorf("parsing report.retry_cooldown %q: %w", cfg.Report.RetryCooldownRaw, err)
		}
	}

	return nil
}
