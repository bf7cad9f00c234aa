// Package sessions tracks what each assistant session is doing, derived
// from the event stream.
package sessions

import (
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/perch/internal/hook"
)

// Phase is the coarse activity state of a session.
type Phase string

const (
	PhaseActive           Phase = "active"
	PhaseProcessing       Phase = "processing"
	PhaseWaiting          Phase = "waiting"
	PhaseCompacting       Phase = "compacting"
	PhaseAwaitingApproval Phase = "awaiting_approval"
)

// State is the last known condition of one session.
type State struct {
	SessionID string    `json:"session_id"`
	Cwd       string    `json:"cwd,omitempty"`
	TTY       string    `json:"tty,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Phase     Phase     `json:"phase"`
	Tool      string    `json:"tool,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry holds session states keyed by session id. Safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*State),
	}
}

// Apply folds one event into the registry. session_end removes the
// session; everything else upserts it.
func (r *Registry) Apply(evt hook.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt.Kind == hook.KindSessionEnd {
		delete(r.sessions, evt.SessionID)
		return
	}

	state, ok := r.sessions[evt.SessionID]
	if !ok {
		state = &State{SessionID: evt.SessionID}
		r.sessions[evt.SessionID] = state
	}

	if evt.Cwd != "" {
		state.Cwd = evt.Cwd
	}
	if evt.TTY != "" {
		state.TTY = evt.TTY
	}
	if evt.PID != 0 {
		state.PID = evt.PID
	}
	state.UpdatedAt = time.Now()

	switch evt.Kind {
	case hook.KindSessionStart:
		state.Phase = PhaseActive
		state.Tool = ""
		state.Message = ""
	case hook.KindUserPromptSubmit:
		state.Phase = PhaseProcessing
		state.Tool = ""
	case hook.KindPreToolUse:
		state.Phase = PhaseProcessing
		state.Tool = evt.ToolName()
	case hook.KindPermissionRequest:
		state.Phase = PhaseAwaitingApproval
		state.Tool = evt.ToolName()
	case hook.KindWaiting:
		state.Phase = PhaseWaiting
		state.Tool = ""
	case hook.KindProcessing:
		state.Phase = PhaseProcessing
	case hook.KindCompacting:
		state.Phase = PhaseCompacting
	case hook.KindNotification:
		state.Message = evt.Message
	}
}

// Get returns a copy of the state for sessionID.
func (r *Registry) Get(sessionID string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// List returns copies of every session state, most recently updated
// first.
func (r *Registry) List() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]State, 0, len(r.sessions))
	for _, state := range r.sessions {
		out = append(out, *state)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// PruneIdle removes sessions that have not produced an event within ttl.
// A session whose process died without a session_end would otherwise stay
// forever.
func (r *Registry) PruneIdle(ttl time.Duration, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-ttl)
	removed := 0
	for id, state := range r.sessions {
		if state.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
