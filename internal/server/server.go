// Package server runs the unix socket listener that ingests hook events
// and holds permission connections open until a decision is delivered.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/perch/internal/concurrency"
	"github.com/harunnryd/perch/internal/config"
	"github.com/harunnryd/perch/internal/correlation"
	"github.com/harunnryd/perch/internal/errors"
	"github.com/harunnryd/perch/internal/hook"
	"github.com/harunnryd/perch/internal/pending"
)

type RuntimeConfig struct {
	SocketPath     string
	ReadTimeout    time.Duration
	PollInterval   time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	EventBuffer    int
}

// Callbacks let the embedding daemon observe the event stream without the
// server knowing about sessions, audit, or UI concerns.
type Callbacks struct {
	// OnEvent receives every successfully decoded event, in arrival order.
	OnEvent func(hook.Event)
	// OnDecision fires after a decision has been written back to a client.
	OnDecision func(evt hook.Event, decision hook.Decision, reason string)
	// OnDeliveryFailure fires when writing a decision back fails and the
	// connection had to be abandoned.
	OnDeliveryFailure func(sessionID, toolUseID string, err error)
}

// Server owns the listener, the correlation cache and the pending table.
// Mutations that touch more than one of those run on a single ops
// goroutine so their interleavings stay serial.
type Server struct {
	mu      sync.RWMutex
	started bool
	quit    chan struct{}
	wg      sync.WaitGroup

	cfg       RuntimeConfig
	callbacks Callbacks

	cache *correlation.Cache
	table *pending.Table

	ln     net.Listener
	ops    chan func()
	events chan hook.Event

	slotMu sync.Mutex
	slots  int
}

func NewServer(cfg RuntimeConfig, callbacks Callbacks) *Server {
	if cfg.ReadTimeout <= 0 {
		if d, err := config.DurationOrDefault("", config.DefaultSocketReadTimeout); err == nil {
			cfg.ReadTimeout = d
		}
	}
	if cfg.PollInterval <= 0 {
		if d, err := config.DurationOrDefault("", config.DefaultSocketPollInterval); err == nil {
			cfg.PollInterval = d
		}
	}
	if cfg.WriteTimeout <= 0 {
		if d, err := config.DurationOrDefault("", config.DefaultSocketWriteTimeout); err == nil {
			cfg.WriteTimeout = d
		}
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = config.DefaultSocketMaxConnections
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = config.DefaultSocketEventBuffer
	}

	return &Server{
		cfg:       cfg,
		callbacks: callbacks,
		cache:     correlation.NewCache(),
		table:     pending.NewTable(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.InvalidInput("server already started")
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	// A socket left behind by a crashed instance would make bind fail.
	if _, err := os.Stat(s.cfg.SocketPath); err == nil {
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
		slog.Warn("Removed stale socket", "path", s.cfg.SocketPath)
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.started = true
	s.quit = make(chan struct{})
	s.ln = ln
	s.ops = make(chan func())
	s.events = make(chan hook.Event, s.cfg.EventBuffer)

	s.wg.Add(1)
	concurrency.SafeGo(func() {
		defer s.wg.Done()
		s.opsLoop()
	}, nil)

	s.wg.Add(1)
	concurrency.SafeGo(func() {
		defer s.wg.Done()
		s.dispatchLoop()
	}, nil)

	s.wg.Add(1)
	concurrency.SafeGo(func() {
		defer s.wg.Done()
		s.acceptLoop()
	}, nil)

	slog.Info("Socket server started",
		"path", s.cfg.SocketPath,
		"max_connections", s.cfg.MaxConnections)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	quit := s.quit
	ln := s.ln
	s.mu.Unlock()

	close(quit)
	ln.Close()

	for _, p := range s.table.RemoveAll() {
		p.Conn.Close()
		s.releaseSlot()
		slog.Info("Dropped pending permission at shutdown",
			"session_id", p.SessionID,
			"tool_use_id", p.ToolUseID)
	}

	done := make(chan struct{})
	concurrency.SafeGo(func() {
		s.wg.Wait()
		close(done)
	}, nil)

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("server shutdown: %w", ctx.Err())
	}

	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Remove socket on shutdown failed", "path", s.cfg.SocketPath, "error", err)
	}

	slog.Info("Socket server stopped", "path", s.cfg.SocketPath)
	return nil
}

// SocketPath returns the path the server is bound to.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// SweepCorrelation drops correlation entries older than ttl. Called by the
// housekeeper on its sweep schedule.
func (s *Server) SweepCorrelation(ttl time.Duration) int {
	return s.cache.Sweep(ttl, time.Now())
}

// PendingCount returns the number of connections parked for a decision.
func (s *Server) PendingCount() int {
	return s.table.Len()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			slog.Warn("Accept failed", "error", err)
			continue
		}

		if !s.tryAcquireSlot() {
			slog.Warn("Connection ceiling reached, rejecting",
				"max_connections", s.cfg.MaxConnections)
			conn.Close()
			continue
		}

		s.wg.Add(1)
		concurrency.SafeGo(func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}, func(any) {
			conn.Close()
			s.releaseSlot()
		})
	}
}

// opsLoop serializes every mutation that spans the correlation cache and
// the pending table.
func (s *Server) opsLoop() {
	for {
		select {
		case <-s.quit:
			return
		case fn := <-s.ops:
			fn()
		}
	}
}

// dispatchLoop forwards decoded events to the daemon in arrival order.
func (s *Server) dispatchLoop() {
	for {
		select {
		case <-s.quit:
			return
		case evt := <-s.events:
			if s.callbacks.OnEvent != nil {
				s.callbacks.OnEvent(evt)
			}
		}
	}
}

// do runs fn on the ops goroutine and waits for it to finish.
func (s *Server) do(fn func()) {
	done := make(chan struct{})
	select {
	case s.ops <- func() {
		fn()
		close(done)
	}:
	case <-s.quit:
		return
	}
	select {
	case <-done:
	case <-s.quit:
	}
}

func (s *Server) forward(evt hook.Event) {
	select {
	case s.events <- evt:
	default:
		slog.Warn("Event buffer full, dropping event",
			"session_id", evt.SessionID,
			"event", string(evt.Kind))
	}
}

func (s *Server) tryAcquireSlot() bool {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.slots >= s.cfg.MaxConnections {
		return false
	}
	s.slots++
	return true
}

func (s *Server) releaseSlot() {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.slots > 0 {
		s.slots--
	}
}
