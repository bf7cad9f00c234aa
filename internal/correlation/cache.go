// Package correlation matches tool use ids to permission requests.
//
// A pre_tool_use event carries a tool use id; the permission_request that
// follows it does not. The cache bridges that gap: ids are pushed under a
// key derived from (session, tool, canonical input) and popped in strict
// FIFO order when a matching permission request arrives. Entries whose
// permission request never arrives (auto-approved tools) are dropped by
// the TTL sweep.
package correlation

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

type entry struct {
	toolUseID string
	cachedAt  time.Time
}

// Cache is an in-memory map of correlation key to a FIFO queue of tool use
// ids. All methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]entry
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string][]entry),
	}
}

// Push appends a tool use id to the queue for key, timestamped now.
func (c *Cache) Push(key, toolUseID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = append(c.entries[key], entry{toolUseID: toolUseID, cachedAt: now})
	slog.Debug("Correlation id cached", "key", key, "tool_use_id", toolUseID, "depth", len(c.entries[key]))
}

// Pop removes and returns the oldest id for key. Returns false when the
// key has no queued ids. A drained key is removed entirely; no zero-length
// queues are retained.
func (c *Cache) Pop(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue, ok := c.entries[key]
	if !ok || len(queue) == 0 {
		return "", false
	}

	head := queue[0]
	if len(queue) == 1 {
		delete(c.entries, key)
	} else {
		c.entries[key] = queue[1:]
	}
	return head.toolUseID, true
}

// PurgeSession removes every key belonging to sessionID. Keys are prefixed
// with the session id, so a prefix match identifies them.
func (c *Cache) PurgeSession(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := sessionID + "|"
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			removed += len(c.entries[key])
			delete(c.entries, key)
		}
	}
	if removed > 0 {
		slog.Debug("Correlation cache purged for session", "session_id", sessionID, "removed", removed)
	}
	return removed
}

// Sweep drops entries cached before now-ttl and removes keys whose queue
// drains as a result. Returns the number of expired entries.
func (c *Cache) Sweep(ttl time.Duration, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-ttl)
	expired := 0
	for key, queue := range c.entries {
		kept := queue[:0]
		for _, e := range queue {
			if e.cachedAt.After(cutoff) {
				kept = append(kept, e)
			} else {
				expired++
			}
		}
		if len(kept) == 0 {
			delete(c.entries, key)
		} else {
			c.entries[key] = kept
		}
	}
	if expired > 0 {
		slog.Debug("Correlation cache swept", "expired", expired)
	}
	return expired
}

// Len returns the total number of cached ids across all keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, queue := range c.entries {
		total += len(queue)
	}
	return total
}
