package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/harunnryd/perch/internal/config"
)

// Server binds the API to a loopback TCP address. Anything outside the
// loopback range is rejected up front; the control plane is local-only.
type Server struct {
	mu          sync.Mutex
	started     bool
	server      *http.Server
	ln          net.Listener
	shutdownTTL time.Duration
}

func NewServer(cfg config.ControlConfig, api *API) (*Server, error) {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse control addr %q: %w", cfg.Addr, err)
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return nil, fmt.Errorf("control addr %q is not loopback", cfg.Addr)
	}

	readTimeout, err := config.DurationOrDefault(cfg.ReadTimeout, config.DefaultControlReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse control read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(cfg.WriteTimeout, config.DefaultControlWriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse control write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(cfg.IdleTimeout, config.DefaultControlIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse control idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(cfg.ShutdownTimeout, config.DefaultControlShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse control shutdown timeout: %w", err)
	}

	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      api.Handler(),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		shutdownTTL: shutdownTimeout,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("control server already started")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.ln = ln

	go func() {
		slog.Info("Control API listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Control API failed", "error", err)
		}
	}()

	s.started = true
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTTL)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Control API shutdown error", "error", err)
		return err
	}

	s.started = false
	slog.Info("Control API stopped")
	return nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.server.Addr
}
