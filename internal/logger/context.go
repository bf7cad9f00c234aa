package logger

import "context"

type contextKey string

const SessionIDKey contextKey = "session_id"
const ToolUseIDKey contextKey = "tool_use_id"

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

func WithToolUseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ToolUseIDKey, id)
}

func GetToolUseID(ctx context.Context) string {
	if id, ok := ctx.Value(ToolUseIDKey).(string); ok {
		return id
	}
	return ""
}
