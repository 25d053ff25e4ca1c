package events

import (
	"context"
	"testing"
)

func TestContextWithSessionID_RoundTrip(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "sess_abc123")
	if got := SessionIDFromContext(ctx); got != "sess_abc123" {
		t.Errorf("SessionIDFromContext = %q, want %q", got, "sess_abc123")
	}
}

func TestSessionIDFromContext_Missing(t *testing.T) {
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty string for context without session id, got %q", got)
	}
}
