package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/perch/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Socket      SocketConfig      `koanf:"socket"`
	Correlation CorrelationConfig `koanf:"correlation"`
	Control     ControlConfig     `koanf:"control"`
	Sessions    SessionsConfig    `koanf:"sessions"`
	Audit       AuditConfig       `koanf:"audit"`
	Daemon      DaemonConfig      `koanf:"daemon"`
}

type ServerConfig struct {
	LogLevel string `koanf:"log_level"`
}

type SocketConfig struct {
	Path           string `koanf:"path"`
	ReadTimeout    string `koanf:"read_timeout"`
	PollInterval   string `koanf:"poll_interval"`
	WriteTimeout   string `koanf:"write_timeout"`
	MaxConnections int    `koanf:"max_connections"`
	EventBuffer    int    `koanf:"event_buffer"`
}

type CorrelationConfig struct {
	EntryTTL      string `koanf:"entry_ttl"`
	SweepInterval string `koanf:"sweep_interval"`
}

type ControlConfig struct {
	Addr            string `koanf:"addr"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type SessionsConfig struct {
	IdleTTL string `koanf:"idle_ttl"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type DaemonConfig struct {
	HomePath               string `koanf:"home_path"`
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	LockTimeout            string `koanf:"lock_timeout"`
	LockRetry              string `koanf:"lock_retry"`
	LockMaxRetry           int    `koanf:"lock_max_retry"`
}

const (
	DefaultServerLogLevel               = "info"
	DefaultSocketReadTimeout            = "5s"
	DefaultSocketPollInterval           = "50ms"
	DefaultSocketWriteTimeout           = "5s"
	DefaultSocketMaxConnections         = 10
	DefaultSocketEventBuffer            = 256
	DefaultCorrelationEntryTTL          = "60s"
	DefaultCorrelationSweepInterval     = "30s"
	DefaultControlAddr                  = "127.0.0.1:4477"
	DefaultControlReadTimeout           = "10s"
	DefaultControlWriteTimeout          = "10s"
	DefaultControlIdleTimeout           = "60s"
	DefaultControlShutdownTimeout       = "5s"
	DefaultSessionsIdleTTL              = "30m"
	DefaultAuditEnabled                 = true
	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonHealthCheckInterval    = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
	DefaultDaemonLockTimeout            = "5s"
	DefaultDaemonLockRetry              = "100ms"
	DefaultDaemonLockMaxRetry           = 50
)

// SocketFileName is the well-known socket name under the perch home directory.
const SocketFileName = "perch.sock"

// AuditFileName is the well-known decision log name under the perch home directory.
const AuditFileName = "audit.log"

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	home := filepath.Join(os.Getenv("HOME"), ".perch")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.log_level":                DefaultServerLogLevel,
		"socket.path":                     filepath.Join(home, SocketFileName),
		"socket.read_timeout":             DefaultSocketReadTimeout,
		"socket.poll_interval":            DefaultSocketPollInterval,
		"socket.write_timeout":            DefaultSocketWriteTimeout,
		"socket.max_connections":          DefaultSocketMaxConnections,
		"socket.event_buffer":             DefaultSocketEventBuffer,
		"correlation.entry_ttl":           DefaultCorrelationEntryTTL,
		"correlation.sweep_interval":      DefaultCorrelationSweepInterval,
		"control.addr":                    DefaultControlAddr,
		"control.read_timeout":            DefaultControlReadTimeout,
		"control.write_timeout":           DefaultControlWriteTimeout,
		"control.idle_timeout":            DefaultControlIdleTimeout,
		"control.shutdown_timeout":        DefaultControlShutdownTimeout,
		"sessions.idle_ttl":               DefaultSessionsIdleTTL,
		"audit.enabled":                   DefaultAuditEnabled,
		"audit.path":                      filepath.Join(home, AuditFileName),
		"daemon.home_path":                home,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTimeout,
		"daemon.lock_timeout":             DefaultDaemonLockTimeout,
		"daemon.lock_retry":               DefaultDaemonLockRetry,
		"daemon.lock_max_retry":           DefaultDaemonLockMaxRetry,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		userHome, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(userHome, ".perch", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("PERCH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PERCH_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	homePath, err := expandConfiguredPath(cfg.Daemon.HomePath)
	if err != nil {
		return err
	}
	if homePath != "" {
		cfg.Daemon.HomePath = homePath
	}

	socketPath, err := expandConfiguredPath(cfg.Socket.Path)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Socket.Path = socketPath
	}

	auditPath, err := expandConfiguredPath(cfg.Audit.Path)
	if err != nil {
		return err
	}
	if auditPath != "" {
		cfg.Audit.Path = auditPath
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
