package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the catalog synchronizer
type Config struct {
	// Upstream catalog service
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Sync engine settings
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Rate limiting for upstream calls
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Persistent store settings
	Store StoreConfig `yaml:"store" json:"store"`

	// Remote trigger server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// UpstreamConfig holds catalog service configuration
type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	APIToken       string        `yaml:"api_token" json:"api_token"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
	ListingCacheTTL time.Duration `yaml:"listing_cache_ttl" json:"listing_cache_ttl"`
}

// SyncConfig holds sync engine settings
type SyncConfig struct {
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	SoftTimeLimit   time.Duration `yaml:"soft_time_limit" json:"soft_time_limit"`
	SoftMemoryLimit int64         `yaml:"soft_memory_limit" json:"soft_memory_limit"`
	PageSize        int           `yaml:"page_size" json:"page_size"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// StoreConfig holds persistent store configuration
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // sqlite or memory
	Path   string `yaml:"path" json:"path"`
}

// ServerConfig holds remote trigger server configuration
type ServerConfig struct {
	Addr          string `yaml:"addr" json:"addr"`
	TriggerSecret string `yaml:"trigger_secret" json:"trigger_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:         "https://api.example-catalog.com",
			RequestTimeout:  30 * time.Second,
			MaxRetries:      3,
			RetryBaseDelay:  time.Second,
			ListingCacheTTL: 15 * time.Minute,
		},
		Sync: SyncConfig{
			BatchSize:       50,
			SoftTimeLimit:   20 * time.Second,
			SoftMemoryLimit: 256 << 20, // 256 MiB
			PageSize:        100,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "casesync.db",
		},
		Server: ServerConfig{
			Addr: ":8743",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("CASESYNC_BASE_URL"); baseURL != "" {
		c.Upstream.BaseURL = baseURL
	}
	if token := os.Getenv("CASESYNC_API_TOKEN"); token != "" {
		c.Upstream.APIToken = token
	}
	if secret := os.Getenv("CASESYNC_TRIGGER_SECRET"); secret != "" {
		c.Server.TriggerSecret = secret
	}
	if addr := os.Getenv("CASESYNC_SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("CASESYNC_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if batch := os.Getenv("CASESYNC_BATCH_SIZE"); batch != "" {
		if val, err := strconv.Atoi(batch); err == nil && val > 0 {
			c.Sync.BatchSize = val
		}
	}
	if rpm := os.Getenv("CASESYNC_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if logLevel := os.Getenv("CASESYNC_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".casesync.yaml",
		".casesync.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "casesync", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "casesync", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".casesync.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream base URL is required"))
	}
	if c.Upstream.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Upstream.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Sync.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Sync.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Sync.SoftTimeLimit <= 0 {
		errs = append(errs, errors.New("soft time limit must be positive"))
	}
	if c.Sync.SoftMemoryLimit < 0 {
		errs = append(errs, errors.New("soft memory limit cannot be negative"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store path is required for sqlite driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver: %s", c.Store.Driver))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if baseURL, ok := flags["base-url"].(string); ok && baseURL != "" {
		c.Upstream.BaseURL = baseURL
	}
	if token, ok := flags["api-token"].(string); ok && token != "" {
		c.Upstream.APIToken = token
	}
	if storePath, ok := flags["store"].(string); ok && storePath != "" {
		c.Store.Path = storePath
	}
	if batchSize, ok := flags["batch-size"].(int); ok && batchSize > 0 {
		c.Sync.BatchSize = batchSize
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".casesync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
