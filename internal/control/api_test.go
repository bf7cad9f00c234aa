package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/perch/internal/audit"
	"github.com/harunnryd/perch/internal/config"
	"github.com/harunnryd/perch/internal/hook"
	"github.com/harunnryd/perch/internal/pending"
	"github.com/harunnryd/perch/internal/sessions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	pending    map[string]pending.Permission
	responded  []string
	cancelled  []string
	bySession  []string
	sessionHit string
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{pending: make(map[string]pending.Permission)}
}

func (f *fakeResponder) Respond(toolUseID string, decision hook.Decision, reason string) bool {
	if _, ok := f.pending[toolUseID]; !ok {
		return false
	}
	delete(f.pending, toolUseID)
	f.responded = append(f.responded, toolUseID+":"+string(decision))
	return true
}

func (f *fakeResponder) RespondBySession(sessionID string, decision hook.Decision, reason string) bool {
	for id, p := range f.pending {
		if p.SessionID == sessionID {
			delete(f.pending, id)
			f.bySession = append(f.bySession, sessionID+":"+string(decision))
			return true
		}
	}
	return false
}

func (f *fakeResponder) Cancel(toolUseID string) {
	delete(f.pending, toolUseID)
	f.cancelled = append(f.cancelled, toolUseID)
}

func (f *fakeResponder) CancelSession(sessionID string) {
	f.sessionHit = sessionID
	for id, p := range f.pending {
		if p.SessionID == sessionID {
			delete(f.pending, id)
		}
	}
}

func (f *fakeResponder) LatestPending(sessionID string) (pending.Permission, bool) {
	for _, p := range f.pending {
		if p.SessionID == sessionID {
			return p, true
		}
	}
	return pending.Permission{}, false
}

func (f *fakeResponder) PendingSnapshot() []pending.Permission {
	out := make([]pending.Permission, 0, len(f.pending))
	for _, p := range f.pending {
		out = append(out, p)
	}
	return out
}

func (f *fakeResponder) PendingCount() int { return len(f.pending) }

func newTestAPI(t *testing.T) (*API, *fakeResponder, *sessions.Registry) {
	t.Helper()

	responder := newFakeResponder()
	registry := sessions.NewRegistry()
	auditLog, err := audit.NewLogger(t.TempDir()+"/audit.log", true)
	require.NoError(t, err)

	return NewAPI(responder, registry, auditLog), responder, registry
}

func doRequest(t *testing.T, api *API, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	api, _, registry := newTestAPI(t)
	registry.Apply(hook.Event{SessionID: "s1", Kind: hook.KindSessionStart})

	rec := doRequest(t, api, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["sessions"])
}

func TestSessionsEndpoints(t *testing.T) {
	api, _, registry := newTestAPI(t)
	registry.Apply(hook.Event{SessionID: "s1", Kind: hook.KindWaiting, Cwd: "/tmp/proj"})

	rec := doRequest(t, api, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []sessions.State `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "/tmp/proj", list.Sessions[0].Cwd)

	rec = doRequest(t, api, http.MethodGet, "/v1/sessions/s1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, api, http.MethodGet, "/v1/sessions/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPermissionRespond(t *testing.T) {
	api, responder, _ := newTestAPI(t)
	responder.pending["toolu_01"] = pending.Permission{
		SessionID:  "s1",
		ToolUseID:  "toolu_01",
		Event:      hook.Event{SessionID: "s1", Tool: "Bash"},
		ReceivedAt: time.Now(),
	}

	rec := doRequest(t, api, http.MethodPost, "/v1/permissions/toolu_01/respond",
		`{"decision":"allow","reason":"fine"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"toolu_01:allow"}, responder.responded)

	rec = doRequest(t, api, http.MethodPost, "/v1/permissions/toolu_01/respond",
		`{"decision":"allow"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPermissionRespondValidation(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := doRequest(t, api, http.MethodPost, "/v1/permissions/x/respond", `{"decision":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, api, http.MethodPost, "/v1/permissions/x/respond", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionRespondAndCancel(t *testing.T) {
	api, responder, _ := newTestAPI(t)
	responder.pending["toolu_02"] = pending.Permission{
		SessionID: "s1",
		ToolUseID: "toolu_02",
		Event:     hook.Event{SessionID: "s1", Tool: "Edit"},
	}

	rec := doRequest(t, api, http.MethodPost, "/v1/sessions/s1/respond", `{"decision":"deny"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1:deny"}, responder.bySession)

	rec = doRequest(t, api, http.MethodPost, "/v1/sessions/s1/respond", `{"decision":"deny"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, api, http.MethodPost, "/v1/sessions/s1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", responder.sessionHit)
}

func TestPendingEndpoints(t *testing.T) {
	api, responder, _ := newTestAPI(t)

	rec := doRequest(t, api, http.MethodGet, "/v1/sessions/s1/pending", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	responder.pending["toolu_03"] = pending.Permission{
		SessionID: "s1",
		ToolUseID: "toolu_03",
		Event: hook.Event{
			SessionID: "s1",
			Tool:      "Bash",
			ToolInput: map[string]any{"command": "ls"},
		},
		ReceivedAt: time.Now(),
	}

	rec = doRequest(t, api, http.MethodGet, "/v1/sessions/s1/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view pendingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "toolu_03", view.ToolUseID)
	assert.Equal(t, "Bash", view.Tool)

	rec = doRequest(t, api, http.MethodGet, "/v1/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Pending []pendingView `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all.Pending, 1)
}

func TestAuditEndpoint(t *testing.T) {
	api, _, _ := newTestAPI(t)
	require.NoError(t, api.audit.(*audit.DefaultLogger).Log(context.Background(), &audit.Entry{
		SessionID: "s1",
		Tool:      "Bash",
		Decision:  "allow",
	}))

	rec := doRequest(t, api, http.MethodGet, "/v1/audit?session_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []*audit.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "allow", resp.Entries[0].Decision)

	rec = doRequest(t, api, http.MethodGet, "/v1/audit?limit=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerRejectsNonLoopback(t *testing.T) {
	api, _, _ := newTestAPI(t)

	_, err := NewServer(config.ControlConfig{Addr: "0.0.0.0:4477"}, api)
	assert.Error(t, err)

	_, err = NewServer(config.ControlConfig{Addr: "not an addr"}, api)
	assert.Error(t, err)
}

func TestServerServesOverLoopback(t *testing.T) {
	api, _, _ := newTestAPI(t)

	srv, err := NewServer(config.ControlConfig{Addr: "127.0.0.1:0"}, api)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
