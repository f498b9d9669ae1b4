package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igdownloader/pkg/auth"
	"igdownloader/pkg/config"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/ui"
)

var (
	// Version information, set with -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	profile    string
	noColor    bool
	quiet      bool

	// status output goes to stderr so stdout stays machine readable
	out = ui.NewPrinter(os.Stderr)
)

var rootCmd = &cobra.Command{
	Use:   "igdownloader",
	Short: "Resolve Instagram post URLs into downloadable media",
	Long: `igdownloader resolves public Instagram post, reel and story URLs into
their downloadable images and videos through a hosted scraping backend.

It runs either as an HTTP service (serve) or as a one-shot command (fetch).
The backend token is read from APIFY_API_TOKEN, the config file, or the
credential store managed with 'igdownloader auth'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		out.SetQuiet(quiet)
		if noColor {
			out.SetColor(false)
		}
		logger.Version = version
	},
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		out.Error("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.igdownloader.yaml or ~/.config/igdownloader/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", auth.DefaultProfile, "stored token profile")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`igdownloader {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// credentialManager opens the token store in the user config directory
func credentialManager() (*auth.Manager, error) {
	dir, err := auth.ConfigDir()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(dir)
}

// loadConfig applies flags over env, .env and the config file, falling back
// to the stored token when none of them set one
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	var fallback config.TokenSource
	if m, err := credentialManager(); err == nil {
		fallback = m.TokenSource(profile)
	}

	return config.Load(configFile, flags, fallback)
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.GetLogger(), nil
}
