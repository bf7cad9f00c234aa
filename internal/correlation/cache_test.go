package correlation

import (
	"fmt"
	"testing"
	"time"
)

func TestCache_FIFOOrder(t *testing.T) {
	cache := NewCache()
	now := time.Now()

	const n = 5
	for i := 0; i < n; i++ {
		cache.Push(`s1|Bash|{"cmd":"ls"}`, fmt.Sprintf("t%d", i), now)
	}

	for i := 0; i < n; i++ {
		id, ok := cache.Pop(`s1|Bash|{"cmd":"ls"}`)
		if !ok {
			t.Fatalf("pop %d: queue drained early", i)
		}
		if want := fmt.Sprintf("t%d", i); id != want {
			t.Errorf("pop %d: got %q, want %q", i, id, want)
		}
	}

	if _, ok := cache.Pop(`s1|Bash|{"cmd":"ls"}`); ok {
		t.Error("pop after drain should fail")
	}
	if cache.Len() != 0 {
		t.Errorf("drained cache should be empty, got %d", cache.Len())
	}
}

func TestCache_KeysAreIndependent(t *testing.T) {
	cache := NewCache()
	now := time.Now()

	cache.Push("s1|Bash|{}", "t1", now)
	cache.Push("s1|Edit|{}", "t2", now)

	if id, ok := cache.Pop("s1|Edit|{}"); !ok || id != "t2" {
		t.Errorf("Edit key: got %q, %v", id, ok)
	}
	if id, ok := cache.Pop("s1|Bash|{}"); !ok || id != "t1" {
		t.Errorf("Bash key: got %q, %v", id, ok)
	}
}

func TestCache_Sweep(t *testing.T) {
	cache := NewCache()
	now := time.Now()
	ttl := time.Minute

	cache.Push("s1|Bash|{}", "old", now.Add(-2*time.Minute))
	cache.Push("s1|Bash|{}", "fresh", now.Add(-10*time.Second))
	cache.Push("s1|Edit|{}", "stale", now.Add(-90*time.Second))

	expired := cache.Sweep(ttl, now)
	if expired != 2 {
		t.Errorf("expired: got %d, want 2", expired)
	}

	// The fresh entry survives and is now the head of its queue.
	if id, ok := cache.Pop("s1|Bash|{}"); !ok || id != "fresh" {
		t.Errorf("surviving entry: got %q, %v", id, ok)
	}

	// The fully expired key is gone.
	if _, ok := cache.Pop("s1|Edit|{}"); ok {
		t.Error("expired key should be removed")
	}
}

func TestCache_SweepKeepsYoungEntries(t *testing.T) {
	cache := NewCache()
	now := time.Now()

	cache.Push("s1|Bash|{}", "t1", now)
	if expired := cache.Sweep(time.Minute, now); expired != 0 {
		t.Errorf("nothing should expire, got %d", expired)
	}
	if cache.Len() != 1 {
		t.Errorf("entry should survive sweep, len=%d", cache.Len())
	}
}

func TestCache_PurgeSession(t *testing.T) {
	cache := NewCache()
	now := time.Now()

	cache.Push("s1|Bash|{}", "t1", now)
	cache.Push("s1|Edit|{}", "t2", now)
	cache.Push("s2|Bash|{}", "t3", now)

	removed := cache.PurgeSession("s1")
	if removed != 2 {
		t.Errorf("removed: got %d, want 2", removed)
	}

	if _, ok := cache.Pop("s1|Bash|{}"); ok {
		t.Error("s1 entries should be purged")
	}
	if id, ok := cache.Pop("s2|Bash|{}"); !ok || id != "t3" {
		t.Error("s2 entries must be untouched")
	}
}

func TestCache_PurgeSessionNoPrefixCollision(t *testing.T) {
	cache := NewCache()
	now := time.Now()

	cache.Push("s1|Bash|{}", "t1", now)
	cache.Push("s10|Bash|{}", "t2", now)

	cache.PurgeSession("s1")

	if id, ok := cache.Pop("s10|Bash|{}"); !ok || id != "t2" {
		t.Error("purge of s1 must not touch s10")
	}
}
