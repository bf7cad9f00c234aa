// Package housekeeper runs the periodic maintenance jobs: correlation
// cache sweeps and idle session pruning.
package housekeeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/perch/internal/errors"

	"github.com/robfig/cron/v3"
)

// Job is one recurring maintenance task. Run returns how many items it
// removed, for logging.
type Job struct {
	Name  string
	Every time.Duration
	Run   func() int
}

type Housekeeper struct {
	mu      sync.Mutex
	started bool
	cron    *cron.Cron
	jobs    []Job
}

func New(jobs ...Job) *Housekeeper {
	return &Housekeeper{jobs: jobs}
}

func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return errors.InvalidInput("housekeeper already started")
	}

	h.cron = cron.New()
	for _, job := range h.jobs {
		if job.Every <= 0 {
			return errors.InvalidInput(fmt.Sprintf("job %q has no interval", job.Name))
		}
		job := job
		h.cron.Schedule(cron.Every(job.Every), cron.FuncJob(func() {
			removed := job.Run()
			if removed > 0 {
				slog.Info("Housekeeping job removed entries",
					"job", job.Name,
					"removed", removed)
			} else {
				slog.Debug("Housekeeping job ran", "job", job.Name)
			}
		}))
	}

	h.cron.Start()
	h.started = true
	slog.Info("Housekeeper started", "jobs", len(h.jobs))
	return nil
}

func (h *Housekeeper) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}
	h.started = false

	stopCtx := h.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return fmt.Errorf("housekeeper shutdown: %w", ctx.Err())
	}

	slog.Info("Housekeeper stopped")
	return nil
}

// RunAll fires every job once, outside the schedule. Used by tests and
// the daemon's initial sweep.
func (h *Housekeeper) RunAll() {
	for _, job := range h.jobs {
		removed := job.Run()
		slog.Debug("Housekeeping job ran", "job", job.Name, "removed", removed)
	}
}
