// Package control exposes the daemon's loopback HTTP API. Decisions made
// in a terminal UI or by a script land here and get routed to the parked
// permission connection.
package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/harunnryd/perch/internal/audit"
	"github.com/harunnryd/perch/internal/hook"
	"github.com/harunnryd/perch/internal/pending"
	"github.com/harunnryd/perch/internal/sessions"
)

// Responder is the slice of the socket server the API needs.
type Responder interface {
	Respond(toolUseID string, decision hook.Decision, reason string) bool
	RespondBySession(sessionID string, decision hook.Decision, reason string) bool
	Cancel(toolUseID string)
	CancelSession(sessionID string)
	LatestPending(sessionID string) (pending.Permission, bool)
	PendingSnapshot() []pending.Permission
	PendingCount() int
}

// SessionReader exposes the session registry read-side.
type SessionReader interface {
	List() []sessions.State
	Get(sessionID string) (sessions.State, bool)
}

// AuditReader exposes the decision log read-side.
type AuditReader interface {
	Query(ctx context.Context, filter *audit.Filter) ([]*audit.Entry, error)
}

type API struct {
	responder Responder
	sessions  SessionReader
	audit     AuditReader
	startTime time.Time
}

func NewAPI(responder Responder, sessionReader SessionReader, auditReader AuditReader) *API {
	return &API{
		responder: responder,
		sessions:  sessionReader,
		audit:     auditReader,
		startTime: time.Now(),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", a.handleHealth)
	mux.HandleFunc("GET /v1/sessions", a.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", a.handleGetSession)
	mux.HandleFunc("GET /v1/sessions/{id}/pending", a.handleSessionPending)
	mux.HandleFunc("POST /v1/sessions/{id}/respond", a.handleSessionRespond)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", a.handleSessionCancel)
	mux.HandleFunc("GET /v1/pending", a.handleListPending)
	mux.HandleFunc("POST /v1/permissions/{id}/respond", a.handlePermissionRespond)
	mux.HandleFunc("POST /v1/permissions/{id}/cancel", a.handlePermissionCancel)
	mux.HandleFunc("GET /v1/audit", a.handleAudit)
	return mux
}

type respondRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// pendingView is a Permission without its connection.
type pendingView struct {
	SessionID  string         `json:"session_id"`
	ToolUseID  string         `json:"tool_use_id"`
	Tool       string         `json:"tool"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

func toPendingView(p pending.Permission) pendingView {
	return pendingView{
		SessionID:  p.SessionID,
		ToolUseID:  p.ToolUseID,
		Tool:       p.Event.ToolName(),
		ToolInput:  p.Event.ToolInput,
		ReceivedAt: p.ReceivedAt,
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(a.startTime).Seconds()),
		"sessions":       len(a.sessions.List()),
		"pending":        a.responder.PendingCount(),
	})
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": a.sessions.List()})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, ok := a.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleSessionPending(w http.ResponseWriter, r *http.Request) {
	p, ok := a.responder.LatestPending(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no pending permission for session")
		return
	}
	writeJSON(w, http.StatusOK, toPendingView(p))
}

func (a *API) handleSessionRespond(w http.ResponseWriter, r *http.Request) {
	decision, reason, ok := decodeRespond(w, r)
	if !ok {
		return
	}

	sessionID := r.PathValue("id")
	if !a.responder.RespondBySession(sessionID, decision, reason) {
		writeError(w, http.StatusNotFound, "no pending permission for session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": true})
}

func (a *API) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	a.responder.CancelSession(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (a *API) handleListPending(w http.ResponseWriter, r *http.Request) {
	snapshot := a.responder.PendingSnapshot()
	views := make([]pendingView, 0, len(snapshot))
	for _, p := range snapshot {
		views = append(views, toPendingView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": views})
}

func (a *API) handlePermissionRespond(w http.ResponseWriter, r *http.Request) {
	decision, reason, ok := decodeRespond(w, r)
	if !ok {
		return
	}

	toolUseID := r.PathValue("id")
	if !a.responder.Respond(toolUseID, decision, reason) {
		writeError(w, http.StatusNotFound, "no pending permission for tool use id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": true})
}

func (a *API) handlePermissionCancel(w http.ResponseWriter, r *http.Request) {
	a.responder.Cancel(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	filter := &audit.Filter{
		SessionID: r.URL.Query().Get("session_id"),
		Tool:      r.URL.Query().Get("tool"),
		Decision:  r.URL.Query().Get("decision"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	entries, err := a.audit.Query(r.Context(), filter)
	if err != nil {
		slog.Error("Audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func decodeRespond(w http.ResponseWriter, r *http.Request) (hook.Decision, string, bool) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", "", false
	}

	decision, err := hook.ParseDecision(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return decision, req.Reason, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
