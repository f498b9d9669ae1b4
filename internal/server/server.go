// Package server exposes the orchestrator and the media relay over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"igdownloader/pkg/config"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/ratelimit"
)

// NewRouter builds the HTTP routes:
//
//	POST /download  resolve a post URL
//	GET  /download  health and counters
//	GET  /media     proxy a media file as an attachment
func NewRouter(cfg config.ServerConfig, service Service, media http.Handler, clients *ratelimit.ClientLimiter, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.GetLogger()
	}
	httpLog := log.WithField("component", "http")

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(accessLog(httpLog))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	downloads := NewDownloadHandler(service, log)

	r.Group(func(r chi.Router) {
		if clients != nil {
			r.Use(clientRateLimit(clients, httpLog))
		}
		r.Post("/download", downloads.HandleDownload)
		r.Get("/media", media.ServeHTTP)
	})
	r.Get("/download", downloads.HandleHealth)

	return r
}

// Server owns the listening http.Server
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// New wraps handler in an http.Server listening on cfg.Addr
func New(cfg config.ServerConfig, handler http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: log.WithField("component", "server"),
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; serve errors after that are logged.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	logger.LogComponentStart(s.logger, "http", map[string]interface{}{"addr": ln.Addr().String()})
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

// Shutdown waits for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	logger.LogComponentStop(s.logger, "http", "shutdown")
	return s.httpServer.Shutdown(ctx)
}
