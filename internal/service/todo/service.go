package todo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eztodo/internal/identity"
	"eztodo/internal/model"
	"eztodo/pkg/metrics"

	"go.uber.org/zap"
)

// Store 是 todo 的远端存储，所有方法都按 userID 限定范围
type Store interface {
	ListByUser(ctx context.Context, userID int) ([]model.Todo, error)
	GetByID(ctx context.Context, userID int, id string) (*model.Todo, error)
	Insert(ctx context.Context, t *model.Todo) error
	Update(ctx context.Context, userID int, id string, patch model.TodoPatch) (bool, error)
	SetCompleted(ctx context.Context, userID int, id string, completed bool) (bool, error)
	Delete(ctx context.Context, userID int, id string) (bool, error)
}

// CreateInput 新建 todo 的参数；DueDate 为 RFC3339，空串等同于未设置
type CreateInput struct {
	Text    string  `json:"text"`
	DueDate *string `json:"due_date"`
	Details *string `json:"details"`
}

// UpdateInput 部分更新；nil 字段不修改，DueDate 为空串表示清除
type UpdateInput struct {
	Text    *string `json:"text"`
	DueDate *string `json:"due_date"`
	Details *string `json:"details"`
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) caller(ctx context.Context) (int, error) {
	userID, ok := identity.UserID(ctx)
	if !ok {
		return 0, ErrUnauthenticated
	}
	return userID, nil
}

// ListForUser 返回调用方的全部 todo，顺序不作保证
func (s *Service) ListForUser(ctx context.Context) ([]model.Todo, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	todos, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}

// Create 新建一条未完成的 todo
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Todo, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if in.Text == "" {
		return nil, ErrEmptyText
	}

	t := &model.Todo{
		UserID:    userID,
		Text:      in.Text,
		Completed: false,
		Details:   normalizeDetails(in.Details),
	}
	if in.DueDate != nil {
		if t.DueDate, err = parseDueDate(*in.DueDate); err != nil {
			return nil, err
		}
	}

	if err := s.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("create todo: %w", err)
	}
	metrics.IncrementTodoMutation("create")
	s.logger.Info("Todo created",
		zap.String("todo_id", t.ID),
		zap.Int("user_id", userID),
		zap.Bool("has_due_date", t.DueDate != nil),
	)
	return t, nil
}

// Toggle 把 completed 设为给定值
func (s *Service) Toggle(ctx context.Context, id string, completed bool) error {
	userID, err := s.caller(ctx)
	if err != nil {
		return err
	}
	found, err := s.store.SetCompleted(ctx, userID, id, completed)
	if err != nil {
		return fmt.Errorf("toggle todo: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	metrics.IncrementTodoMutation("toggle")
	return nil
}

// Update 只修改传入的字段；没有字段时确认归属后直接返回成功
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) error {
	userID, err := s.caller(ctx)
	if err != nil {
		return err
	}

	var patch model.TodoPatch
	if in.Text != nil {
		if *in.Text == "" {
			return ErrEmptyText
		}
		patch.Text = in.Text
	}
	if in.DueDate != nil {
		patch.SetDueDate = true
		if patch.DueDate, err = parseDueDate(*in.DueDate); err != nil {
			return err
		}
	}
	if in.Details != nil {
		patch.SetDetails = true
		patch.Details = normalizeDetails(in.Details)
	}

	found, err := s.store.Update(ctx, userID, id, patch)
	if err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if !patch.Empty() {
		metrics.IncrementTodoMutation("update")
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	userID, err := s.caller(ctx)
	if err != nil {
		return err
	}
	found, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	metrics.IncrementTodoMutation("delete")
	s.logger.Info("Todo deleted", zap.String("todo_id", id), zap.Int("user_id", userID))
	return nil
}

// GetByID 返回 (nil, nil) 表示不存在或不属于调用方
func (s *Service) GetByID(ctx context.Context, id string) (*model.Todo, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.store.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

func parseDueDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	due, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDueDate, raw)
	}
	return &due, nil
}

func normalizeDetails(details *string) *string {
	if details == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*details)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
