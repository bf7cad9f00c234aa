package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/perch/internal/audit"
	"github.com/harunnryd/perch/internal/config"
	"github.com/harunnryd/perch/internal/daemon"
	"github.com/harunnryd/perch/internal/hook"
	"github.com/harunnryd/perch/internal/server"
)

type SocketServerComponent struct {
	cfg         *config.Config
	sessions    *SessionsComponent
	audit       *AuditComponent
	server      *server.Server
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewSocketServerComponent(cfg *config.Config, sessionsComp *SessionsComponent, auditComp *AuditComponent) *SocketServerComponent {
	return &SocketServerComponent{
		cfg:      cfg,
		sessions: sessionsComp,
		audit:    auditComp,
	}
}

func (s *SocketServerComponent) Name() string {
	return "SocketServer"
}

func (s *SocketServerComponent) Dependencies() []string {
	return []string{"Sessions", "Audit"}
}

func (s *SocketServerComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	readTimeout, err := config.DurationOrDefault(s.cfg.Socket.ReadTimeout, config.DefaultSocketReadTimeout)
	if err != nil {
		return fmt.Errorf("parse socket read timeout: %w", err)
	}
	pollInterval, err := config.DurationOrDefault(s.cfg.Socket.PollInterval, config.DefaultSocketPollInterval)
	if err != nil {
		return fmt.Errorf("parse socket poll interval: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(s.cfg.Socket.WriteTimeout, config.DefaultSocketWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse socket write timeout: %w", err)
	}

	registry := s.sessions.Registry()
	auditLog := s.audit.Logger()

	s.server = server.NewServer(server.RuntimeConfig{
		SocketPath:     s.cfg.Socket.Path,
		ReadTimeout:    readTimeout,
		PollInterval:   pollInterval,
		WriteTimeout:   writeTimeout,
		MaxConnections: s.cfg.Socket.MaxConnections,
		EventBuffer:    s.cfg.Socket.EventBuffer,
	}, server.Callbacks{
		OnEvent: registry.Apply,
		OnDecision: func(evt hook.Event, decision hook.Decision, reason string) {
			err := auditLog.Log(context.Background(), &audit.Entry{
				SessionID: evt.SessionID,
				ToolUseID: evt.ToolUseID,
				Tool:      evt.ToolName(),
				ToolInput: evt.ToolInput,
				Decision:  string(decision),
				Reason:    reason,
			})
			if err != nil {
				slog.Error("Failed to audit decision",
					"session_id", evt.SessionID,
					"tool_use_id", evt.ToolUseID,
					"error", err)
			}
		},
		OnDeliveryFailure: func(sessionID, toolUseID string, err error) {
			slog.Error("Permission delivery failed, client will fall back",
				"session_id", sessionID,
				"tool_use_id", toolUseID,
				"error", err)
		},
	})

	s.initialized = true
	slog.Info("SocketServer initialized", "component", s.Name(), "path", s.cfg.Socket.Path)
	return nil
}

func (s *SocketServerComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("SocketServer not initialized")
	}

	if err := s.server.Start(ctx); err != nil {
		return err
	}

	s.started = true
	return nil
}

func (s *SocketServerComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		slog.Info("SocketServer not started, skipping stop", "component", s.Name())
		return nil
	}

	if err := s.server.Stop(ctx); err != nil {
		return err
	}

	s.started = false
	return nil
}

func (s *SocketServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !s.started {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    s.Name(),
		Healthy: true,
	}, nil
}

func (s *SocketServerComponent) Server() *server.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}
