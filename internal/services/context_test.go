package services

import (
	"context"
	"testing"
)

func TestContextAnnotations(t *testing.T) {
	ctx := context.Background()
	ctx = WithScriptID(ctx, "script-1")
	ctx = WithProjectID(ctx, "project-1")
	ctx = WithStage(ctx, "characters")
	ctx = WithSubTask(ctx, "character_A")
	ctx = WithRequestID(ctx, "req-123")

	if v, ok := ScriptIDFromContext(ctx); !ok || v != "script-1" {
		t.Fatalf("script id = %q, %v", v, ok)
	}
	if v, ok := ProjectIDFromContext(ctx); !ok || v != "project-1" {
		t.Fatalf("project id = %q, %v", v, ok)
	}
	if v, ok := StageFromContext(ctx); !ok || v != "characters" {
		t.Fatalf("stage = %q, %v", v, ok)
	}
	if v, ok := SubTaskFromContext(ctx); !ok || v != "character_A" {
		t.Fatalf("sub-task = %q, %v", v, ok)
	}
	if v, ok := RequestIDFromContext(ctx); !ok || v != "req-123" {
		t.Fatalf("request id = %q, %v", v, ok)
	}
}

func TestEmptyAnnotationsAreNoOps(t *testing.T) {
	ctx := WithStage(context.Background(), "")
	if _, ok := StageFromContext(ctx); ok {
		t.Fatal("empty stage must not be stored")
	}
}
