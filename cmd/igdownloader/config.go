package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igdownloader/pkg/auth"
	"igdownloader/pkg/config"
)

const defaultConfigPath = ".igdownloader.yaml"

const exampleConfig = `# igdownloader configuration
#
# Environment variables override this file:
#   APIFY_API_TOKEN, APIFY_ACTOR_ID, RATE_LIMIT_REQUESTS_PER_MINUTE,
#   RATE_LIMIT_REQUESTS_PER_HOUR, ENABLE_CACHE, CACHE_TTL_SECONDS, LOG_LEVEL,
#   ENABLE_API_LOGGING, IGDL_ADDR, IGDL_OUTPUT_DIR, IGDL_ALLOWED_ORIGINS

apify:
  # Prefer 'igdownloader auth set-token' or APIFY_API_TOKEN over a token here
  token: ""
  actor_id: "shu8hvrXbJbY3Eb9W"
  base_url: "https://api.apify.com"
  timeout: 90s
  wait_for_finish_secs: 60
  results_limit: 1

# Fixed windows shared by every caller
rate_limit:
  requests_per_minute: 10
  requests_per_hour: 100

cache:
  enabled: false
  ttl_seconds: 300
  # Expired entries are swept once the cache holds more than this many keys
  soft_limit: 100
  sweep_interval: 1m

retry:
  max_attempts: 3
  # Doubles after every failed attempt
  base_delay: 1s

server:
  addr: ":8080"
  allowed_origins: ["*"]
  client_requests_per_second: 5
  client_burst: 10
  media_timeout: 60s
  # 0 means unlimited
  max_media_bytes: 0

validator:
  # Empty accepts any host with an Instagram shaped path
  allowed_hosts: []

download:
  output_dir: "./downloads"
  concurrent_downloads: 3

logging:
  level: "info"
  file: ""
  enable_api_logging: false
`

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igdownloader configuration.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables
  - .env files
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the merged configuration with the token masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := os.WriteFile(path, []byte(exampleConfig), 0o600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	out.Success("Configuration file created: " + path)
	out.Line("\nNext steps:")
	out.Line("1. Store the backend token with 'igdownloader auth set-token'")
	out.Line("2. Run 'igdownloader config validate'")
	out.Line("3. Start the service with 'igdownloader serve'")
	return nil
}

// mergedConfig loads file and env without validating, so show works before
// a token is configured
func mergedConfig() (*config.Config, string, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return nil, "", err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, "", err
	}

	source := "config/env"
	if cfg.Apify.Token == "" {
		source = "unset"
		if m, err := credentialManager(); err == nil {
			if cred, store, err := m.Retrieve(profile); err == nil {
				cfg.Apify.Token = cred.Token
				source = store
			}
		}
	}
	return cfg, source, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, source, err := mergedConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	display := *cfg
	if display.Apify.Token != "" {
		display.Apify.Token = auth.MaskToken(display.Apify.Token)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	out.Highlight("Current Configuration")
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	out.Info("Token source", source)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			out.Error("Configuration has errors")
			for _, e := range joined.Unwrap() {
				out.Line("  - %s", e)
			}
			return errors.New("invalid configuration")
		}
		return err
	}

	if cfg.Cache.Enabled && cfg.Cache.TTLSeconds < 60 {
		out.Warning("Cache TTL is under a minute", cfg.Cache.TTLSeconds)
	}

	out.Success("Configuration is valid")
	out.Line("\nConfiguration summary:")
	out.Line("  Listen address:   %s", cfg.Server.Addr)
	out.Line("  Rate limit:       %d/min, %d/hour", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour)
	out.Line("  Cache:            %t (ttl %ds)", cfg.Cache.Enabled, cfg.Cache.TTLSeconds)
	out.Line("  Retry:            %d attempts from %s", cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay)
	out.Line("  Output directory: %s", cfg.Download.OutputDir)
	out.Line("  Log level:        %s", cfg.Logging.Level)
	return nil
}
