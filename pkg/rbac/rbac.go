package rbac

import "slices"

// 权限常量
const (
	PermissionReadTodo   = "todo:read"
	PermissionWriteTodo  = "todo:write"
	PermissionManageNoti = "notification:manage"

	// 敏感操作权限
	PermissionReplayOutbox = "outbox:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionReadTodo,
		PermissionWriteTodo,
		PermissionManageNoti,
	},
	RoleAdmin: {
		PermissionReadTodo,
		PermissionWriteTodo,
		PermissionManageNoti,
		PermissionReplayOutbox,
	},
}

// NormalizeRole 未知或空角色一律视为普通用户
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleUser
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(permissions, permission)
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID int, role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
