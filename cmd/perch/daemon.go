package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/harunnryd/perch/internal/daemon"
	"github.com/harunnryd/perch/internal/daemon/components"
	"github.com/harunnryd/perch/internal/lockfile"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the perch daemon",
	Long:  `Starts perch as a long-running service: unix socket listener, session registry, control API and housekeeping, orchestrated with component lifecycle management.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		lock, err := lockfile.Acquire(cfg.Daemon.HomePath, nil)
		if err != nil {
			return err
		}
		defer lock.Unlock()

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}

		sessionsComp := components.NewSessionsComponent()
		auditComp := components.NewAuditComponent(&cfg.Audit)
		socketComp := components.NewSocketServerComponent(cfg, sessionsComp, auditComp)
		controlComp := components.NewControlComponent(&cfg.Control, socketComp, sessionsComp, auditComp)
		keeperComp := components.NewHousekeeperComponent(cfg, socketComp, sessionsComp)

		daemonMgr.AddComponent(sessionsComp)
		daemonMgr.AddComponent(auditComp)
		daemonMgr.AddComponent(socketComp)
		daemonMgr.AddComponent(controlComp)
		daemonMgr.AddComponent(keeperComp)

		if err := lockfile.WriteRunInfo(cfg.Daemon.HomePath, lockfile.RunInfo{
			PID:         os.Getpid(),
			SocketPath:  cfg.Socket.Path,
			ControlAddr: cfg.Control.Addr,
			StartedAt:   time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("failed to publish run info: %w", err)
		}
		defer func() {
			if err := lockfile.RemoveRunInfo(cfg.Daemon.HomePath); err != nil {
				slog.Warn("Failed to remove run info", "error", err)
			}
		}()

		slog.Info("Perch daemon starting up...",
			"socket", cfg.Socket.Path,
			"control", cfg.Control.Addr)
		err = daemonMgr.Start(context.Background())
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Perch daemon stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Perch daemon stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().String("control.addr", "", "control API listen address (loopback only)")
	daemonCmd.Flags().Int("socket.max_connections", 0, "maximum concurrent socket connections")
}
