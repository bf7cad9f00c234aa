package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harunnryd/perch/internal/lockfile"
)

// discoverRunInfo prefers the live daemon's published run info and falls
// back to the loaded config when no daemon.json exists.
func discoverRunInfo() lockfile.RunInfo {
	info, err := lockfile.ReadRunInfo(cfg.Daemon.HomePath)
	if err != nil {
		return lockfile.RunInfo{
			SocketPath:  cfg.Socket.Path,
			ControlAddr: cfg.Control.Addr,
		}
	}
	if info.SocketPath == "" {
		info.SocketPath = cfg.Socket.Path
	}
	if info.ControlAddr == "" {
		info.ControlAddr = cfg.Control.Addr
	}
	return info
}

func controlClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func controlPost(addr, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := controlClient().Post("http://"+addr+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("is the perch daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return controlError(resp)
	}
	return nil
}

func controlGet(addr, path string, out any) error {
	resp, err := controlClient().Get("http://" + addr + path)
	if err != nil {
		return fmt.Errorf("is the perch daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return controlError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func controlError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("control API returned status %d", resp.StatusCode)
}
