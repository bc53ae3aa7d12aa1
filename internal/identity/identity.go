// Package identity carries the authenticated caller through context.Context.
package identity

import "context"

type ctxKey struct{}

type principal struct {
	userID int
	role   string
}

// WithUser 把已认证的用户写入 context
func WithUser(ctx context.Context, userID int, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, principal{userID: userID, role: role})
}

// UserID 返回调用方用户 ID；未认证时 ok 为 false
func UserID(ctx context.Context) (int, bool) {
	p, ok := ctx.Value(ctxKey{}).(principal)
	if !ok || p.userID <= 0 {
		return 0, false
	}
	return p.userID, true
}

// Role 返回调用方角色
func Role(ctx context.Context) string {
	p, _ := ctx.Value(ctxKey{}).(principal)
	return p.role
}
