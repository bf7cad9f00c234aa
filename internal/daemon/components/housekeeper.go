package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/perch/internal/config"
	"github.com/harunnryd/perch/internal/daemon"
	"github.com/harunnryd/perch/internal/housekeeper"
)

type HousekeeperComponent struct {
	cfg         *config.Config
	socket      *SocketServerComponent
	sessions    *SessionsComponent
	keeper      *housekeeper.Housekeeper
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewHousekeeperComponent(cfg *config.Config, socketComp *SocketServerComponent, sessionsComp *SessionsComponent) *HousekeeperComponent {
	return &HousekeeperComponent{
		cfg:      cfg,
		socket:   socketComp,
		sessions: sessionsComp,
	}
}

func (h *HousekeeperComponent) Name() string {
	return "Housekeeper"
}

func (h *HousekeeperComponent) Dependencies() []string {
	return []string{"SocketServer", "Sessions"}
}

func (h *HousekeeperComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entryTTL, err := config.DurationOrDefault(h.cfg.Correlation.EntryTTL, config.DefaultCorrelationEntryTTL)
	if err != nil {
		return fmt.Errorf("parse correlation entry ttl: %w", err)
	}
	sweepInterval, err := config.DurationOrDefault(h.cfg.Correlation.SweepInterval, config.DefaultCorrelationSweepInterval)
	if err != nil {
		return fmt.Errorf("parse correlation sweep interval: %w", err)
	}
	idleTTL, err := config.DurationOrDefault(h.cfg.Sessions.IdleTTL, config.DefaultSessionsIdleTTL)
	if err != nil {
		return fmt.Errorf("parse sessions idle ttl: %w", err)
	}

	srv := h.socket.Server()
	registry := h.sessions.Registry()

	h.keeper = housekeeper.New(
		housekeeper.Job{
			Name:  "correlation_sweep",
			Every: sweepInterval,
			Run: func() int {
				return srv.SweepCorrelation(entryTTL)
			},
		},
		housekeeper.Job{
			Name:  "session_prune",
			Every: sweepInterval,
			Run: func() int {
				return registry.PruneIdle(idleTTL, time.Now())
			},
		},
	)

	h.initialized = true
	slog.Info("Housekeeper initialized",
		"component", h.Name(),
		"entry_ttl", entryTTL,
		"sweep_interval", sweepInterval,
		"idle_ttl", idleTTL)
	return nil
}

func (h *HousekeeperComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("Housekeeper not initialized")
	}

	if err := h.keeper.Start(ctx); err != nil {
		return err
	}

	h.started = true
	return nil
}

func (h *HousekeeperComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		slog.Info("Housekeeper not started, skipping stop", "component", h.Name())
		return nil
	}

	if err := h.keeper.Stop(ctx); err != nil {
		return err
	}

	h.started = false
	return nil
}

func (h *HousekeeperComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return &daemon.ComponentHealth{
			Name:    h.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !h.started {
		return &daemon.ComponentHealth{
			Name:    h.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    h.Name(),
		Healthy: true,
	}, nil
}
