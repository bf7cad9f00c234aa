package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/perch/internal/config"
	"github.com/harunnryd/perch/internal/control"
	"github.com/harunnryd/perch/internal/daemon"
)

type ControlComponent struct {
	cfg         *config.ControlConfig
	socket      *SocketServerComponent
	sessions    *SessionsComponent
	audit       *AuditComponent
	server      *control.Server
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewControlComponent(cfg *config.ControlConfig, socketComp *SocketServerComponent, sessionsComp *SessionsComponent, auditComp *AuditComponent) *ControlComponent {
	return &ControlComponent{
		cfg:      cfg,
		socket:   socketComp,
		sessions: sessionsComp,
		audit:    auditComp,
	}
}

func (c *ControlComponent) Name() string {
	return "ControlAPI"
}

func (c *ControlComponent) Dependencies() []string {
	return []string{"SocketServer", "Sessions", "Audit"}
}

func (c *ControlComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	api := control.NewAPI(c.socket.Server(), c.sessions.Registry(), c.audit.Logger())
	srv, err := control.NewServer(*c.cfg, api)
	if err != nil {
		return fmt.Errorf("create control server: %w", err)
	}

	c.server = srv
	c.initialized = true
	slog.Info("ControlAPI initialized", "component", c.Name(), "addr", c.cfg.Addr)
	return nil
}

func (c *ControlComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return fmt.Errorf("ControlAPI not initialized")
	}

	if err := c.server.Start(ctx); err != nil {
		return err
	}

	c.started = true
	return nil
}

func (c *ControlComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		slog.Info("ControlAPI not started, skipping stop", "component", c.Name())
		return nil
	}

	if err := c.server.Stop(ctx); err != nil {
		return err
	}

	c.started = false
	return nil
}

func (c *ControlComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return &daemon.ComponentHealth{
			Name:    c.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !c.started {
		return &daemon.ComponentHealth{
			Name:    c.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    c.Name(),
		Healthy: true,
	}, nil
}

func (c *ControlComponent) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.server == nil {
		return c.cfg.Addr
	}
	return c.server.Addr()
}
