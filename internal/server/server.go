// Package server is the HTTP control API: the operator- and UI-facing
// surface over the two managed supervisors, the resource orchestrator, and
// the generation registry.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/forgebench/infersupervisor/internal/applog"
	"github.com/forgebench/infersupervisor/internal/orchestrator"
	"github.com/forgebench/infersupervisor/internal/registry"
	"github.com/forgebench/infersupervisor/internal/supervisor"
)

// Config controls the listener address.
type Config struct {
	Host string
	Port int
}

func (c Config) addr() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 9090
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Server is the supervisor process's HTTP control API.
type Server struct {
	cfg          Config
	http         *http.Server
	llama        *supervisor.Supervisor
	diffusion    *supervisor.DiffusionSupervisor
	orchestrator *orchestrator.Orchestrator
	registry     *registry.Registry
}

// New wires the control API's routes over the supervisor pair, the
// orchestrator, and the generation registry.
func New(cfg Config, llama *supervisor.Supervisor, diffusion *supervisor.DiffusionSupervisor, orch *orchestrator.Orchestrator, reg *registry.Registry) *Server {
	s := &Server{
		cfg:          cfg,
		llama:        llama,
		diffusion:    diffusion,
		orchestrator: orch,
		registry:     reg,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.http = &http.Server{
		Addr:    cfg.addr(),
		Handler: withLogging(withCORS(mux)),
	}

	return s
}

// Start listens and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}

	applog.Info().Str("addr", s.http.Addr).Msg("control API listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		applog.Info().Msg("shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			applog.Error().Err(err).Msg("control API shutdown error")
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

