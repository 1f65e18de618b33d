package services

import "context"

type contextKey string

const (
	scriptIDKey  contextKey = "script_id"
	projectIDKey contextKey = "project_id"
	stageKey     contextKey = "stage"
	subTaskKey   contextKey = "sub_task"
	requestIDKey contextKey = "request_id"
)

// WithScriptID annotates context with the script identifier.
func WithScriptID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, scriptIDKey, id)
}

// ScriptIDFromContext extracts the script identifier if present.
func ScriptIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(scriptIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithProjectID annotates context with the project identifier.
func WithProjectID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, projectIDKey, id)
}

// ProjectIDFromContext extracts the project identifier if present.
func ProjectIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(projectIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSubTask annotates context with the sub-task identifier.
func WithSubTask(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, subTaskKey, id)
}

// SubTaskFromContext returns the sub-task identifier if present.
func SubTaskFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(subTaskKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
