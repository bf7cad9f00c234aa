// Package lockfile guards the perch home directory so only one daemon
// runs per user, and publishes its run info for CLI discovery.
package lockfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/perch/internal/config"

	"github.com/gofrs/flock"
)

type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

type FileLockConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
}

func DefaultFileLockConfig() *FileLockConfig {
	lockTimeout, _ := config.DurationOrDefault(config.DefaultDaemonLockTimeout, config.DefaultDaemonLockTimeout)
	lockRetry, _ := config.DurationOrDefault(config.DefaultDaemonLockRetry, config.DefaultDaemonLockRetry)

	return &FileLockConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: config.DefaultDaemonLockMaxRetry,
	}
}

// Acquire takes the daemon lock under homePath. A second instance fails
// after the configured retries instead of binding over the live socket.
func Acquire(homePath string, cfg *FileLockConfig) (*FileLock, error) {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}

	if err := os.MkdirAll(homePath, 0o700); err != nil {
		return nil, fmt.Errorf("create home dir: %w", err)
	}

	lockPath := filepath.Join(homePath, "daemon.lock")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LockTimeout)

	fl := &FileLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := fl.acquireWithRetry(cfg); err != nil {
		cancel()
		return nil, err
	}

	fl.acquiredAt = time.Now()
	slog.Info("Daemon lock acquired",
		"path", lockPath,
		"acquired_at", fl.acquiredAt.Format(time.RFC3339Nano),
	)

	return fl, nil
}

func (fl *FileLock) acquireWithRetry(cfg *FileLockConfig) error {
	for i := 0; i < cfg.LockMaxRetry; i++ {
		select {
		case <-fl.ctx.Done():
			return fmt.Errorf("lock acquisition cancelled: %w", fl.ctx.Err())
		default:
			locked, err := fl.fileLock.TryLock()
			if err != nil {
				return fmt.Errorf("failed to attempt lock: %w", err)
			}
			if locked {
				return nil
			}

			if i < cfg.LockMaxRetry-1 {
				time.Sleep(cfg.LockRetry)
			}
		}
	}

	return fmt.Errorf("another perch daemon is already running (timeout after %v)", cfg.LockTimeout)
}

func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.fileLock == nil {
		slog.Warn("Daemon lock already released", "path", fl.lockPath)
		return
	}

	heldDuration := time.Since(fl.acquiredAt)
	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release daemon lock",
			"path", fl.lockPath,
			"error", err)
	} else {
		slog.Info("Daemon lock released",
			"path", fl.lockPath,
			"held_duration_ms", heldDuration.Milliseconds())
	}

	fl.cancel()
	fl.fileLock = nil
}
