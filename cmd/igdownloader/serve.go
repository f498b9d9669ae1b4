package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igdownloader/internal/app"
)

var (
	serveAddr  string
	serveCache bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Run the HTTP service until interrupted.

Routes:
  POST /download   resolve {"url": "..."} into media items
  GET  /download   health, cache and rate limit counters
  GET  /media      proxy ?url=...&filename=... as an attachment`,
	Example: `  igdownloader serve --addr :8080 --cache`,
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8080)")
	serveCmd.Flags().BoolVar(&serveCache, "cache", false, "enable the response cache")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{}
	if serveAddr != "" {
		flags["addr"] = serveAddr
	}
	if cmd.Flags().Changed("cache") {
		flags["cache"] = serveCache
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	application := app.New(cfg, log)

	startCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	if err := application.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	out.Banner()
	out.Info("Listening", cfg.Server.Addr)
	out.Info("Cache", fmt.Sprintf("%t (ttl %ds)", cfg.Cache.Enabled, cfg.Cache.TTLSeconds))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	return application.Stop(stopCtx)
}
