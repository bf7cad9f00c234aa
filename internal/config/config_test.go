package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	// We pass nil for cmd to skip flags
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.LogLevel != DefaultServerLogLevel {
		t.Errorf("Expected default log level %s, got %s", DefaultServerLogLevel, cfg.Server.LogLevel)
	}
	wantSocket := filepath.Join(home, ".perch", SocketFileName)
	if cfg.Socket.Path != wantSocket {
		t.Errorf("Expected default socket path %s, got %s", wantSocket, cfg.Socket.Path)
	}
	if cfg.Socket.ReadTimeout != DefaultSocketReadTimeout {
		t.Errorf("Expected default read timeout %s, got %s", DefaultSocketReadTimeout, cfg.Socket.ReadTimeout)
	}
	if cfg.Socket.PollInterval != DefaultSocketPollInterval {
		t.Errorf("Expected default poll interval %s, got %s", DefaultSocketPollInterval, cfg.Socket.PollInterval)
	}
	if cfg.Socket.MaxConnections != DefaultSocketMaxConnections {
		t.Errorf("Expected default max connections %d, got %d", DefaultSocketMaxConnections, cfg.Socket.MaxConnections)
	}
	if cfg.Correlation.EntryTTL != DefaultCorrelationEntryTTL {
		t.Errorf("Expected default entry ttl %s, got %s", DefaultCorrelationEntryTTL, cfg.Correlation.EntryTTL)
	}
	if cfg.Correlation.SweepInterval != DefaultCorrelationSweepInterval {
		t.Errorf("Expected default sweep interval %s, got %s", DefaultCorrelationSweepInterval, cfg.Correlation.SweepInterval)
	}
	if cfg.Control.Addr != DefaultControlAddr {
		t.Errorf("Expected default control addr %s, got %s", DefaultControlAddr, cfg.Control.Addr)
	}
	if cfg.Sessions.IdleTTL != DefaultSessionsIdleTTL {
		t.Errorf("Expected default idle ttl %s, got %s", DefaultSessionsIdleTTL, cfg.Sessions.IdleTTL)
	}
	if cfg.Audit.Enabled != DefaultAuditEnabled {
		t.Errorf("Expected default audit enabled %v, got %v", DefaultAuditEnabled, cfg.Audit.Enabled)
	}
	if cfg.Daemon.ShutdownTimeout != DefaultDaemonShutdownTimeout {
		t.Errorf("Expected default daemon shutdown timeout %s, got %s", DefaultDaemonShutdownTimeout, cfg.Daemon.ShutdownTimeout)
	}
	if cfg.Daemon.LockMaxRetry != DefaultDaemonLockMaxRetry {
		t.Errorf("Expected default lock max retry %d, got %d", DefaultDaemonLockMaxRetry, cfg.Daemon.LockMaxRetry)
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
socket:
  max_connections: 25
control:
  addr: 127.0.0.1:9090
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Socket.MaxConnections != 25 {
		t.Fatalf("expected max connections 25, got %d", cfg.Socket.MaxConnections)
	}
	if cfg.Control.Addr != "127.0.0.1:9090" {
		t.Fatalf("expected control addr 127.0.0.1:9090, got %s", cfg.Control.Addr)
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestLoad_ExpandsConfiguredPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
socket:
  path: ~/.perch/perch.sock
audit:
  path: ~/.perch/audit.log
daemon:
  home_path: ~/.perch
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	wantSocket := filepath.Join(tmpDir, ".perch", "perch.sock")
	if cfg.Socket.Path != wantSocket {
		t.Fatalf("socket path = %q, want %q", cfg.Socket.Path, wantSocket)
	}
	wantAudit := filepath.Join(tmpDir, ".perch", "audit.log")
	if cfg.Audit.Path != wantAudit {
		t.Fatalf("audit path = %q, want %q", cfg.Audit.Path, wantAudit)
	}
	wantHome := filepath.Join(tmpDir, ".perch")
	if cfg.Daemon.HomePath != wantHome {
		t.Fatalf("home path = %q, want %q", cfg.Daemon.HomePath, wantHome)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PERCH_CONTROL_ADDR", "127.0.0.1:9999")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Control.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected env-overridden control addr, got %s", cfg.Control.Addr)
	}
}
