package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/perch/internal/audit"
	"github.com/harunnryd/perch/internal/config"
	"github.com/harunnryd/perch/internal/daemon"
)

type AuditComponent struct {
	cfg         *config.AuditConfig
	logger      *audit.DefaultLogger
	initialized bool
	mu          sync.RWMutex
}

func NewAuditComponent(cfg *config.AuditConfig) *AuditComponent {
	return &AuditComponent{cfg: cfg}
}

func (a *AuditComponent) Name() string {
	return "Audit"
}

func (a *AuditComponent) Dependencies() []string {
	return []string{}
}

func (a *AuditComponent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	logger, err := audit.NewLogger(a.cfg.Path, a.cfg.Enabled)
	if err != nil {
		return fmt.Errorf("create audit logger: %w", err)
	}

	a.logger = logger
	a.initialized = true
	slog.Info("Audit initialized",
		"component", a.Name(),
		"enabled", a.cfg.Enabled,
		"path", a.cfg.Path)
	return nil
}

func (a *AuditComponent) Start(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.initialized {
		return fmt.Errorf("Audit not initialized")
	}
	return nil
}

func (a *AuditComponent) Stop(ctx context.Context) error {
	return nil
}

func (a *AuditComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.initialized {
		return &daemon.ComponentHealth{
			Name:    a.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    a.Name(),
		Healthy: true,
	}, nil
}

func (a *AuditComponent) Logger() *audit.DefaultLogger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logger
}
