// Package pending tracks permission requests whose connections are held
// open awaiting a human decision.
package pending

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/perch/internal/hook"
)

// Permission is one parked request. The table exclusively owns Conn while
// the entry exists; removal transfers ownership to the caller, which must
// close it exactly once.
type Permission struct {
	SessionID  string
	ToolUseID  string
	Conn       net.Conn
	Event      hook.Event
	ReceivedAt time.Time
}

// Table maps tool use id to a parked permission. All methods are safe for
// concurrent use; its mutex is independent of the correlation cache's.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*Permission
}

func NewTable() *Table {
	return &Table{
		entries: make(map[string]*Permission),
	}
}

// Insert parks a permission under its tool use id. A duplicate id replaces
// nothing: the first entry wins and Insert reports false so the caller can
// close the superfluous connection.
func (t *Table) Insert(p *Permission) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[p.ToolUseID]; exists {
		return false
	}
	t.entries[p.ToolUseID] = p
	return true
}

// Remove takes the entry for toolUseID out of the table, transferring
// connection ownership to the caller. Returns nil when absent.
func (t *Table) Remove(toolUseID string) *Permission {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[toolUseID]
	if !ok {
		return nil
	}
	delete(t.entries, toolUseID)
	return p
}

// RemoveLatestBySession takes out the most recently received entry for
// sessionID. Most recent wins: when several requests are outstanding the
// human is looking at the newest one.
func (t *Table) RemoveLatestBySession(sessionID string) *Permission {
	t.mu.Lock()
	defer t.mu.Unlock()

	var latest *Permission
	for _, p := range t.entries {
		if p.SessionID != sessionID {
			continue
		}
		if latest == nil || p.ReceivedAt.After(latest.ReceivedAt) {
			latest = p
		}
	}
	if latest != nil {
		delete(t.entries, latest.ToolUseID)
	}
	return latest
}

// RemoveBySession takes out every entry for sessionID.
func (t *Table) RemoveBySession(sessionID string) []*Permission {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []*Permission
	for id, p := range t.entries {
		if p.SessionID == sessionID {
			removed = append(removed, p)
			delete(t.entries, id)
		}
	}
	return removed
}

// RemoveAll drains the table. Used at shutdown.
func (t *Table) RemoveAll() []*Permission {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := make([]*Permission, 0, len(t.entries))
	for id, p := range t.entries {
		removed = append(removed, p)
		delete(t.entries, id)
	}
	return removed
}

// Has reports whether sessionID has at least one parked permission.
func (t *Table) Has(sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, p := range t.entries {
		if p.SessionID == sessionID {
			return true
		}
	}
	return false
}

// Latest returns a copy of the newest parked permission for sessionID
// without removing it. Used by the UI to render the approval panel.
func (t *Table) Latest(sessionID string) (Permission, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var latest *Permission
	for _, p := range t.entries {
		if p.SessionID != sessionID {
			continue
		}
		if latest == nil || p.ReceivedAt.After(latest.ReceivedAt) {
			latest = p
		}
	}
	if latest == nil {
		return Permission{}, false
	}
	return *latest, true
}

// Snapshot returns copies of every parked permission, newest first.
func (t *Table) Snapshot() []Permission {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Permission, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out
}

// Len returns the number of parked permissions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
