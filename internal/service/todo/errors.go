package todo

import "errors"

var (
	// ErrUnauthenticated 请求没有可解析的调用方身份
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound todo 不存在或不属于调用方
	ErrNotFound = errors.New("todo not found")
	// ErrEmptyText 文本为空
	ErrEmptyText = errors.New("todo text must not be empty")
	// ErrInvalidDueDate 截止时间无法解析
	ErrInvalidDueDate = errors.New("invalid due date")
)
