// Package app assembles the HTTP service with fx.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/fx"

	"igdownloader/internal/relay"
	"igdownloader/internal/server"
	"igdownloader/pkg/apify"
	"igdownloader/pkg/config"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/ratelimit"
	"igdownloader/pkg/scraper"
)

// Module provides every component of the service. Callers supply the loaded
// configuration and the root logger.
func Module(cfg *config.Config, log logger.Logger) fx.Option {
	return fx.Module("igdownloader",
		fx.Supply(cfg),
		fx.Provide(
			func() logger.Logger { return log },
			fx.Annotate(
				NewBackend,
				fx.As(new(scraper.Backend)),
			),
			newOrchestrator,
			fx.Annotate(
				func(o *scraper.Orchestrator) *scraper.Orchestrator { return o },
				fx.As(new(server.Service)),
			),
			fx.Annotate(
				newFetcher,
				fx.As(new(relay.Opener)),
			),
			relay.NewHandler,
			newClientLimiter,
			newRouter,
			newServer,
		),
		SchedulerModule,
		fx.Invoke(registerServer),
	)
}

// New builds the fx application
func New(cfg *config.Config, log logger.Logger, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Logger(fxPrinter{log: log}),
		Module(cfg, log),
	}
	return fx.New(append(opts, extra...)...)
}

// NewBackend builds the scraping backend client. Its request logging is
// silenced unless logging.enable_api_logging is set.
func NewBackend(cfg *config.Config, log logger.Logger) *apify.Client {
	if !cfg.Logging.EnableAPILogging {
		log = logger.NewNopLogger()
	}
	return apify.NewClient(cfg.Apify, log)
}

func newOrchestrator(cfg *config.Config, backend scraper.Backend, log logger.Logger) *scraper.Orchestrator {
	return scraper.New(cfg, backend, log)
}

func newFetcher(cfg *config.Config, log logger.Logger) *relay.Fetcher {
	return relay.NewFetcher(cfg.Server.MediaTimeout, cfg.Server.MaxMediaBytes, log)
}

func newClientLimiter(cfg *config.Config) *ratelimit.ClientLimiter {
	if cfg.Server.ClientRequestsPerSecond <= 0 {
		return nil
	}
	return ratelimit.NewClientLimiter(cfg.Server.ClientRequestsPerSecond, cfg.Server.ClientBurst)
}

func newRouter(cfg *config.Config, svc server.Service, media *relay.Handler, clients *ratelimit.ClientLimiter, log logger.Logger) http.Handler {
	return server.NewRouter(cfg.Server, svc, media, clients, log)
}

func newServer(cfg *config.Config, handler http.Handler, log logger.Logger) *server.Server {
	return server.New(cfg.Server, handler, log)
}

func registerServer(lc fx.Lifecycle, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// fxPrinter routes fx's own output to the debug level
type fxPrinter struct {
	log logger.Logger
}

func (p fxPrinter) Printf(format string, args ...interface{}) {
	p.log.Debug(fmt.Sprintf(format, args...))
}
