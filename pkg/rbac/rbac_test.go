package rbac

import (
	"errors"
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleUser, PermissionReadTodo, true},
		{RoleUser, PermissionWriteTodo, true},
		{RoleUser, PermissionReplayOutbox, false},
		{RoleAdmin, PermissionReplayOutbox, true},
		{"ghost", PermissionReadTodo, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.permission); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.permission, got, tt.want)
			}
		})
	}
}

func TestCheckPermission(t *testing.T) {
	err := CheckPermission(3, RoleUser, PermissionReplayOutbox)
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
	if denied.UserID != 3 || denied.Permission != PermissionReplayOutbox {
		t.Errorf("unexpected error fields: %+v", denied)
	}
	if err := CheckPermission(3, RoleAdmin, PermissionReplayOutbox); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestNormalizeRole(t *testing.T) {
	if NormalizeRole("") != RoleUser {
		t.Error("expected empty role to normalize to user")
	}
	if NormalizeRole(RoleAdmin) != RoleAdmin {
		t.Error("expected admin to stay admin")
	}
}
