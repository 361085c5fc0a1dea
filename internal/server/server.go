package server

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/config"
)

// Server runs the API router on an http.Server configured from
// config.ServerConfig.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	log             zerolog.Logger
}

// New creates a Server for router. Timeouts and the listen address come
// from cfg; errors reported by net/http itself go to log.
func New(cfg config.ServerConfig, router chi.Router, log zerolog.Logger) *Server {
	log = log.With().Str("component", "http").Logger()
	return &Server{
		log:             log,
		shutdownTimeout: cfg.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorLog:          stdlog.New(errorLogWriter{log: log}, "", 0),
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until the server is shut down, then returns nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for active requests,
// bounded by the configured shutdown timeout and ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	s.log.Info().Dur("timeout", s.shutdownTimeout).Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// errorLogWriter adapts zerolog to the *log.Logger that http.Server
// expects for connection level errors.
type errorLogWriter struct {
	log zerolog.Logger
}

func (w errorLogWriter) Write(p []byte) (int, error) {
	w.log.Warn().Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}
