package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqcontracts "eztodo/contracts/mq"
	"eztodo/internal/model"
	"eztodo/pkg/outbox"
	"eztodo/pkg/trace"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const todoAggregate = "todo"

// TodoRepository 所有读写都按 user_id 过滤
type TodoRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewTodoRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *TodoRepository {
	return &TodoRepository{db: db, outbox: outboxRepo, logger: logger}
}

const todoColumns = `id::text, user_id, text, completed, due_date, details, created_at`

func scanTodo(row pgx.Row) (*model.Todo, error) {
	var t model.Todo
	if err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Text,
		&t.Completed,
		&t.DueDate,
		&t.Details,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TodoRepository) ListByUser(ctx context.Context, userID int) ([]model.Todo, error) {
	r.logger.Debug("Listing todos for user", zap.Int("user_id", userID))
	query := `
        SELECT ` + todoColumns + `
        FROM todos
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to query todos",
			zap.Error(err),
			zap.Int("user_id", userID),
		)
		return nil, err
	}
	defer rows.Close()

	todos := []model.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			r.logger.Error("Failed to scan todo row",
				zap.Error(err),
				zap.Int("user_id", userID),
			)
			return nil, err
		}
		todos = append(todos, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return todos, nil
}

// GetByID 返回 (nil, nil) 表示不存在或不属于该用户
func (r *TodoRepository) GetByID(ctx context.Context, userID int, id string) (*model.Todo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	query := `
        SELECT ` + todoColumns + `
        FROM todos
        WHERE id = $1 AND user_id = $2
    `
	t, err := scanTodo(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get todo",
			zap.Error(err),
			zap.String("todo_id", id),
		)
		return nil, err
	}
	return t, nil
}

// Insert 写入 todo 并在同一事务里记录 todo.changed 事件，ID 由存储层生成
func (r *TodoRepository) Insert(ctx context.Context, t *model.Todo) error {
	t.ID = uuid.NewString()
	return r.withTx(ctx, func(tx pgx.Tx) error {
		query := `
            INSERT INTO todos (id, user_id, text, completed, due_date, details)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING created_at
        `
		if err := tx.QueryRow(ctx, query,
			t.ID,
			t.UserID,
			t.Text,
			t.Completed,
			t.DueDate,
			t.Details,
		).Scan(&t.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert todo: %w", err)
		}
		return r.recordChange(ctx, tx, t.UserID, t.ID, "create")
	})
}

// Update 按 patch 修改字段，返回 false 表示不存在或不属于该用户
func (r *TodoRepository) Update(ctx context.Context, userID int, id string, patch model.TodoPatch) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	if patch.Empty() {
		return r.exists(ctx, userID, id)
	}

	found := false
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		query := `
            UPDATE todos
            SET text = COALESCE($3::text, text),
                due_date = CASE WHEN $4::boolean THEN $5::timestamptz ELSE due_date END,
                details = CASE WHEN $6::boolean THEN $7::text ELSE details END,
                updated_at = NOW()
            WHERE id = $1 AND user_id = $2
        `
		tag, err := tx.Exec(ctx, query,
			id,
			userID,
			patch.Text,
			patch.SetDueDate,
			patch.DueDate,
			patch.SetDetails,
			patch.Details,
		)
		if err != nil {
			return fmt.Errorf("failed to update todo: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		found = true
		return r.recordChange(ctx, tx, userID, id, "update")
	})
	return found, err
}

// SetCompleted 把 completed 设为给定值
func (r *TodoRepository) SetCompleted(ctx context.Context, userID int, id string, completed bool) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	found := false
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE todos
            SET completed = $3, updated_at = NOW()
            WHERE id = $1 AND user_id = $2
        `, id, userID, completed)
		if err != nil {
			return fmt.Errorf("failed to toggle todo: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		found = true
		return r.recordChange(ctx, tx, userID, id, "toggle")
	})
	return found, err
}

func (r *TodoRepository) Delete(ctx context.Context, userID int, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	found := false
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return fmt.Errorf("failed to delete todo: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		found = true
		return r.recordChange(ctx, tx, userID, id, "delete")
	})
	return found, err
}

func (r *TodoRepository) exists(ctx context.Context, userID int, id string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM todos WHERE id = $1 AND user_id = $2)`,
		id, userID,
	).Scan(&ok)
	return ok, err
}

func (r *TodoRepository) recordChange(ctx context.Context, tx pgx.Tx, userID int, todoID, op string) error {
	payload := mqcontracts.TodoChangedPayload{
		EventID:    uuid.NewString(),
		UserID:     userID,
		TodoID:     todoID,
		Operation:  op,
		TraceID:    trace.FromContext(ctx),
		OccurredAt: time.Now().UTC(),
	}
	return outbox.InsertEventInTx(ctx, tx, r.outbox, todoAggregate, todoID, mqcontracts.RoutingTodoChanged, payload)
}

// withTx 开启事务执行 fn，fn 返回错误时回滚
func (r *TodoRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		r.logger.Error("Todo transaction failed", zap.Error(err))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
