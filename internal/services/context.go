package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	tableKey     contextKey = "table"
	sessionIDKey contextKey = "session_id"
)

// WithRunID annotates context with the invocation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the invocation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTable annotates context with the metadata table being produced.
func WithTable(ctx context.Context, table string) context.Context {
	if table == "" {
		return ctx
	}
	return context.WithValue(ctx, tableKey, table)
}

// TableFromContext returns the table name if present.
func TableFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(tableKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithSessionID annotates context with the session being written or fetched.
func WithSessionID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(sessionIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}
