package hook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/perch/internal/errors"
)

// Kind classifies a lifecycle event emitted by the assistant's hook script.
type Kind string

const (
	KindPreToolUse        Kind = "pre_tool_use"
	KindPermissionRequest Kind = "permission_request"
	KindUserPromptSubmit  Kind = "user_prompt_submit"
	KindWaiting           Kind = "waiting"
	KindProcessing        Kind = "processing"
	KindCompacting        Kind = "compacting"
	KindSessionStart      Kind = "session_start"
	KindSessionEnd        Kind = "session_end"
	KindNotification      Kind = "notification"
)

// StatusAwaitingApproval marks a permission_request event whose connection
// must be held open until a human decision arrives.
const StatusAwaitingApproval = "awaiting_approval"

// Event is one lifecycle occurrence, decoded from a single JSON object
// sent over one client connection.
type Event struct {
	SessionID        string         `json:"session_id"`
	Cwd              string         `json:"cwd,omitempty"`
	Kind             Kind           `json:"event"`
	Status           string         `json:"status,omitempty"`
	PID              int            `json:"pid,omitempty"`
	TTY              string         `json:"tty,omitempty"`
	Tool             string         `json:"tool,omitempty"`
	ToolInput        map[string]any `json:"tool_input,omitempty"`
	ToolUseID        string         `json:"tool_use_id,omitempty"`
	NotificationType string         `json:"notification_type,omitempty"`
	Message          string         `json:"message,omitempty"`
}

// Decode parses one event payload and validates the required fields.
func Decode(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", errors.ErrInvalidPayload)
	}
	if strings.TrimSpace(evt.SessionID) == "" {
		return Event{}, errors.InvalidPayload("missing session_id")
	}
	if evt.Kind == "" {
		return Event{}, errors.InvalidPayload("missing event kind")
	}
	return evt, nil
}

// ExpectsResponse reports whether the connection that carried this event
// must stay open for a decision.
func (e Event) ExpectsResponse() bool {
	return e.Kind == KindPermissionRequest && e.Status == StatusAwaitingApproval
}

// ToolName returns the tool name, or "unknown" when absent. Correlation
// keys always carry a tool segment so identical inputs under different
// tools never collide.
func (e Event) ToolName() string {
	if e.Tool == "" {
		return "unknown"
	}
	return e.Tool
}

// Decision is a human verdict on a pending permission request.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionAsk   Decision = "ask"
)

// ParseDecision validates a wire decision string.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionAllow, DecisionDeny, DecisionAsk:
		return Decision(s), nil
	default:
		return "", errors.InvalidInput(fmt.Sprintf("unknown decision %q", s))
	}
}

// Response is the payload written back over a held permission connection.
// Reason marshals as null when no reason was given.
type Response struct {
	Decision Decision `json:"decision"`
	Reason   *string  `json:"reason"`
}

// NewResponse builds a response, mapping an empty reason to null.
func NewResponse(decision Decision, reason string) Response {
	resp := Response{Decision: decision}
	if reason != "" {
		resp.Reason = &reason
	}
	return resp
}
