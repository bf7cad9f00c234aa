package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/perch/internal/daemon"
	"github.com/harunnryd/perch/internal/sessions"
)

type SessionsComponent struct {
	registry    *sessions.Registry
	initialized bool
	mu          sync.RWMutex
}

func NewSessionsComponent() *SessionsComponent {
	return &SessionsComponent{}
}

func (s *SessionsComponent) Name() string {
	return "Sessions"
}

func (s *SessionsComponent) Dependencies() []string {
	return []string{}
}

func (s *SessionsComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry = sessions.NewRegistry()
	s.initialized = true
	slog.Info("Sessions initialized", "component", s.Name())
	return nil
}

func (s *SessionsComponent) Start(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return fmt.Errorf("Sessions not initialized")
	}
	return nil
}

func (s *SessionsComponent) Stop(ctx context.Context) error {
	return nil
}

func (s *SessionsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    s.Name(),
		Healthy: true,
	}, nil
}

func (s *SessionsComponent) Registry() *sessions.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}
