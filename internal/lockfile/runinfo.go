package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// RunInfoFileName is the discovery file the daemon writes under its home
// directory so CLI subcommands can find the live instance.
const RunInfoFileName = "daemon.json"

// RunInfo describes a running daemon.
type RunInfo struct {
	PID         int       `json:"pid"`
	SocketPath  string    `json:"socket_path"`
	ControlAddr string    `json:"control_addr"`
	StartedAt   time.Time `json:"started_at"`
}

// WriteRunInfo publishes info atomically so a concurrent reader never
// sees a half-written file.
func WriteRunInfo(homePath string, info RunInfo) error {
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run info: %w", err)
	}

	path := filepath.Join(homePath, RunInfoFileName)
	if err := atomic.WriteFile(path, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("write run info: %w", err)
	}
	return nil
}

// ReadRunInfo loads the discovery file for a running daemon.
func ReadRunInfo(homePath string) (RunInfo, error) {
	path := filepath.Join(homePath, RunInfoFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return RunInfo{}, fmt.Errorf("read run info: %w", err)
	}

	var info RunInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return RunInfo{}, fmt.Errorf("decode run info: %w", err)
	}
	return info, nil
}

// RemoveRunInfo deletes the discovery file. Missing is fine.
func RemoveRunInfo(homePath string) error {
	err := os.Remove(filepath.Join(homePath, RunInfoFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
