package reqctx

import (
	"context"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	rc := Context{TenantID: "tn_1", UserID: "user_1", AccountID: "act_123"}
	ctx := With(context.Background(), rc)
	got, ok := From(ctx)
	if !ok {
		t.Fatalf("From: missing request context")
	}
	if got != rc {
		t.Fatalf("From=%+v, want %+v", got, rc)
	}
}

func TestFromEmpty(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Fatalf("expected no request context")
	}
}

func TestWithNilContext(t *testing.T) {
	ctx := With(nil, Context{TenantID: "tn_9"})
	if got, ok := From(ctx); !ok || got.TenantID != "tn_9" {
		t.Fatalf("From=%+v ok=%v, want tn_9", got, ok)
	}
}
