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

// Config holds all configuration options for the download service
type Config struct {
	// Scraping backend credentials and endpoint
	Apify ApifyConfig `yaml:"apify" json:"apify"`

	// Fixed-window limits on backend calls
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Response cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Backend retry policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// HTTP server
	Server ServerConfig `yaml:"server" json:"server"`

	// URL validation
	Validator ValidatorConfig `yaml:"validator" json:"validator"`

	// CLI download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ApifyConfig holds the scraping backend settings
type ApifyConfig struct {
	Token             string        `yaml:"token" json:"token"`
	ActorID           string        `yaml:"actor_id" json:"actor_id"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	WaitForFinishSecs int           `yaml:"wait_for_finish_secs" json:"wait_for_finish_secs"`
	ResultsLimit      int           `yaml:"results_limit" json:"results_limit"`
}

// RateLimitConfig holds the per-window ceilings
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour" json:"requests_per_hour"`
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	TTLSeconds    int           `yaml:"ttl_seconds" json:"ttl_seconds"`
	SoftLimit     int           `yaml:"soft_limit" json:"soft_limit"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// RetryConfig holds the backend retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr                    string        `yaml:"addr" json:"addr"`
	AllowedOrigins          []string      `yaml:"allowed_origins" json:"allowed_origins"`
	ClientRequestsPerSecond float64       `yaml:"client_requests_per_second" json:"client_requests_per_second"`
	ClientBurst             int           `yaml:"client_burst" json:"client_burst"`
	MediaTimeout            time.Duration `yaml:"media_timeout" json:"media_timeout"`
	MaxMediaBytes           int64         `yaml:"max_media_bytes" json:"max_media_bytes"`
}

// ValidatorConfig restricts which hosts are accepted. Empty means any host.
type ValidatorConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts" json:"allowed_hosts"`
}

// DownloadConfig holds CLI download settings
type DownloadConfig struct {
	OutputDir           string `yaml:"output_dir" json:"output_dir"`
	ConcurrentDownloads int    `yaml:"concurrent_downloads" json:"concurrent_downloads"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level" json:"level"`
	File             string `yaml:"file" json:"file"`
	EnableAPILogging bool   `yaml:"enable_api_logging" json:"enable_api_logging"`
}

// DefaultActorID is the Instagram scraper actor used when none is configured
const DefaultActorID = "shu8hvrXbJbY3Eb9W"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Apify: ApifyConfig{
			ActorID:           DefaultActorID,
			BaseURL:           "https://api.apify.com",
			Timeout:           90 * time.Second,
			WaitForFinishSecs: 60,
			ResultsLimit:      1,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 10,
			RequestsPerHour:   100,
		},
		Cache: CacheConfig{
			Enabled:       false,
			TTLSeconds:    300,
			SoftLimit:     100,
			SweepInterval: time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
		Server: ServerConfig{
			Addr:                    ":8080",
			AllowedOrigins:          []string{"*"},
			ClientRequestsPerSecond: 5,
			ClientBurst:             10,
			MediaTimeout:            60 * time.Second,
		},
		Download: DownloadConfig{
			OutputDir:           "./downloads",
			ConcurrentDownloads: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if token := os.Getenv("APIFY_API_TOKEN"); token != "" {
		c.Apify.Token = token
	}
	if actor := os.Getenv("APIFY_ACTOR_ID"); actor != "" {
		c.Apify.ActorID = actor
	}

	if err := envInt("RATE_LIMIT_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute); err != nil {
		errs = append(errs, err)
	}
	if err := envInt("RATE_LIMIT_REQUESTS_PER_HOUR", &c.RateLimit.RequestsPerHour); err != nil {
		errs = append(errs, err)
	}

	if enabled := os.Getenv("ENABLE_CACHE"); enabled != "" {
		c.Cache.Enabled = enabled == "true"
	}
	if err := envInt("CACHE_TTL_SECONDS", &c.Cache.TTLSeconds); err != nil {
		errs = append(errs, err)
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if apiLogging := os.Getenv("ENABLE_API_LOGGING"); apiLogging != "" {
		c.Logging.EnableAPILogging = apiLogging == "true"
	}

	if addr := os.Getenv("IGDL_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if origins := os.Getenv("IGDL_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	if outputDir := os.Getenv("IGDL_OUTPUT_DIR"); outputDir != "" {
		c.Download.OutputDir = outputDir
	}

	return errors.Join(errs...)
}

func envInt(name string, target *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", name, err)
	}
	*target = val
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
	home := os.Getenv("HOME")
	locations := []string{
		".igdownloader.yaml",
		".igdownloader.yml",
		filepath.Join(home, ".config", "igdownloader", "config.yaml"),
		filepath.Join(home, ".config", "igdownloader", "config.yml"),
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

	if strings.TrimSpace(c.Apify.Token) == "" {
		errs = append(errs, errors.New("APIFY_API_TOKEN is required"))
	}
	if c.Apify.ActorID == "" {
		errs = append(errs, errors.New("apify actor id is required"))
	}
	if c.Apify.BaseURL == "" {
		errs = append(errs, errors.New("apify base url is required"))
	}
	if c.Apify.Timeout <= 0 {
		errs = append(errs, errors.New("apify timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.RequestsPerHour <= 0 {
		errs = append(errs, errors.New("requests per hour must be positive"))
	}

	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, errors.New("cache ttl must be positive"))
	}
	if c.Cache.SoftLimit <= 0 {
		errs = append(errs, errors.New("cache soft limit must be positive"))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, errors.New("cache sweep interval must be positive"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, errors.New("retry base delay cannot be negative"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Server.ClientRequestsPerSecond <= 0 {
		errs = append(errs, errors.New("client requests per second must be positive"))
	}
	if c.Server.ClientBurst <= 0 {
		errs = append(errs, errors.New("client burst must be positive"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
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
	if token, ok := flags["token"].(string); ok && token != "" {
		c.Apify.Token = token
	}
	if addr, ok := flags["addr"].(string); ok && addr != "" {
		c.Server.Addr = addr
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Download.OutputDir = outputDir
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if cache, ok := flags["cache"].(bool); ok {
		c.Cache.Enabled = cache
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// TokenSource supplies the backend token when neither env nor file set one
type TokenSource func() (string, error)

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}, fallback TokenSource) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igdownloader.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if config.Apify.Token == "" && fallback != nil {
		if token, err := fallback(); err == nil {
			config.Apify.Token = token
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
