// Package audit keeps an append-only JSONL record of permission
// decisions.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter *Filter) ([]*Entry, error)
}

// Entry is one recorded decision.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	ToolUseID string         `json:"tool_use_id"`
	Tool      string         `json:"tool"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	Decision  string         `json:"decision"`
	Reason    string         `json:"reason,omitempty"`
	Source    string         `json:"source,omitempty"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	SessionID string
	Tool      string
	Decision  string
	Since     time.Time
	Limit     int
}

type DefaultLogger struct {
	mu      sync.RWMutex
	logPath string
	enabled bool
}

func NewLogger(logPath string, enabled bool) (*DefaultLogger, error) {
	if !enabled {
		return &DefaultLogger{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}

	return &DefaultLogger{
		logPath: logPath,
		enabled: true,
	}, nil
}

func (al *DefaultLogger) Log(ctx context.Context, entry *Entry) error {
	if !al.enabled {
		return nil
	}
	if entry == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		slog.Error("Failed to marshal audit entry", "error", err)
		return err
	}

	f, err := os.OpenFile(al.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("Failed to open audit log", "error", err)
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(entryJSON, '\n')); err != nil {
		slog.Error("Failed to write audit entry", "error", err)
		return err
	}

	slog.Debug("Audit entry logged",
		"id", entry.ID,
		"session_id", entry.SessionID,
		"tool", entry.Tool,
		"decision", entry.Decision)
	return nil
}

func (al *DefaultLogger) Query(ctx context.Context, filter *Filter) ([]*Entry, error) {
	al.mu.RLock()
	defer al.mu.RUnlock()

	if !al.enabled {
		return []*Entry{}, nil
	}

	file, err := os.Open(al.logPath)
	if os.IsNotExist(err) {
		return []*Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			slog.Warn("Failed to parse audit entry", "line", string(line), "error", err)
			continue
		}

		entries = append(entries, &entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if filter == nil {
		return entries, nil
	}
	return applyFilter(entries, filter), nil
}

func applyFilter(entries []*Entry, filter *Filter) []*Entry {
	filtered := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		if filter.SessionID != "" && entry.SessionID != filter.SessionID {
			continue
		}
		if filter.Tool != "" && entry.Tool != filter.Tool {
			continue
		}
		if filter.Decision != "" && entry.Decision != filter.Decision {
			continue
		}
		if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
			continue
		}
		filtered = append(filtered, entry)
	}

	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[len(filtered)-filter.Limit:]
	}
	return filtered
}
