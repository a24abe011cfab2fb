package services_test

import (
	"context"
	"testing"

	"allenpipe/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithTable(ctx, "behavior_sessions")
	ctx = services.WithSessionID(ctx, 42)

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if table, ok := services.TableFromContext(ctx); !ok || table != "behavior_sessions" {
		t.Fatalf("unexpected table: %v %v", table, ok)
	}
	if id, ok := services.SessionIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTable(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.TableFromContext(ctx); ok {
		t.Fatal("expected no table for blank value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id for blank value")
	}
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session id on empty context")
	}
}
