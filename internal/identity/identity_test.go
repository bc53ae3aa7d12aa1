package identity

import (
	"context"
	"testing"
)

func TestUserID(t *testing.T) {
	if _, ok := UserID(context.Background()); ok {
		t.Error("expected no identity on empty context")
	}
	if _, ok := UserID(WithUser(context.Background(), 0, "user")); ok {
		t.Error("expected zero user id to be rejected")
	}

	ctx := WithUser(context.Background(), 9, "admin")
	id, ok := UserID(ctx)
	if !ok || id != 9 {
		t.Errorf("expected 9, got %d (ok=%v)", id, ok)
	}
	if Role(ctx) != "admin" {
		t.Errorf("expected admin, got %q", Role(ctx))
	}
}
