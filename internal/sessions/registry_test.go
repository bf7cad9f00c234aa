package sessions

import (
	"testing"
	"time"

	"github.com/harunnryd/perch/internal/hook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDerivesPhase(t *testing.T) {
	cases := []struct {
		name string
		evt  hook.Event
		want Phase
	}{
		{"session start", hook.Event{SessionID: "s1", Kind: hook.KindSessionStart}, PhaseActive},
		{"prompt submit", hook.Event{SessionID: "s1", Kind: hook.KindUserPromptSubmit}, PhaseProcessing},
		{"pre tool use", hook.Event{SessionID: "s1", Kind: hook.KindPreToolUse, Tool: "Bash"}, PhaseProcessing},
		{"permission request", hook.Event{SessionID: "s1", Kind: hook.KindPermissionRequest, Tool: "Bash"}, PhaseAwaitingApproval},
		{"waiting", hook.Event{SessionID: "s1", Kind: hook.KindWaiting}, PhaseWaiting},
		{"processing", hook.Event{SessionID: "s1", Kind: hook.KindProcessing}, PhaseProcessing},
		{"compacting", hook.Event{SessionID: "s1", Kind: hook.KindCompacting}, PhaseCompacting},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			r.Apply(tc.evt)
			state, ok := r.Get("s1")
			require.True(t, ok)
			assert.Equal(t, tc.want, state.Phase)
		})
	}
}

func TestApplyTracksToolAndIdentity(t *testing.T) {
	r := NewRegistry()
	r.Apply(hook.Event{
		SessionID: "s1",
		Kind:      hook.KindSessionStart,
		Cwd:       "/home/dev/project",
		TTY:       "/dev/ttys003",
		PID:       4242,
	})
	r.Apply(hook.Event{SessionID: "s1", Kind: hook.KindPreToolUse, Tool: "Edit"})

	state, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "/home/dev/project", state.Cwd)
	assert.Equal(t, "/dev/ttys003", state.TTY)
	assert.Equal(t, 4242, state.PID)
	assert.Equal(t, "Edit", state.Tool)
}

func TestSessionEndRemoves(t *testing.T) {
	r := NewRegistry()
	r.Apply(hook.Event{SessionID: "s1", Kind: hook.KindSessionStart})
	r.Apply(hook.Event{SessionID: "s2", Kind: hook.KindSessionStart})

	r.Apply(hook.Event{SessionID: "s1", Kind: hook.KindSessionEnd})

	_, ok := r.Get("s1")
	assert.False(t, ok)
	_, ok = r.Get("s2")
	assert.True(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestNotificationUpdatesMessageOnly(t *testing.T) {
	r := NewRegistry()
	r.Apply(hook.Event{SessionID: "s1", Kind: hook.KindWaiting})
	r.Apply(hook.Event{SessionID: "s1", Kind: hook.KindNotification, Message: "build finished"})

	state, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, PhaseWaiting, state.Phase)
	assert.Equal(t, "build finished", state.Message)
}

func TestListNewestFirst(t *testing.T) {
	r := NewRegistry()
	r.Apply(hook.Event{SessionID: "s1", Kind: hook.KindSessionStart})
	time.Sleep(2 * time.Millisecond)
	r.Apply(hook.Event{SessionID: "s2", Kind: hook.KindSessionStart})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].SessionID)
	assert.Equal(t, "s1", list[1].SessionID)
}

func TestPruneIdle(t *testing.T) {
	r := NewRegistry()
	r.Apply(hook.Event{SessionID: "s1", Kind: hook.KindSessionStart})
	r.Apply(hook.Event{SessionID: "s2", Kind: hook.KindSessionStart})

	removed := r.PruneIdle(time.Minute, time.Now())
	assert.Equal(t, 0, removed)
	assert.Equal(t, 2, r.Len())

	removed = r.PruneIdle(time.Nanosecond, time.Now().Add(time.Second))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, r.Len())
}
