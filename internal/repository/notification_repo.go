package repository

import (
	"context"
	"fmt"
	"time"

	mqcontracts "eztodo/contracts/mq"
	"eztodo/internal/model"
	"eztodo/pkg/outbox"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const reminderAggregate = "reminder"

// NotificationRepository 管理 scheduled_notifications，行 ID 即提醒 handle
type NotificationRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, outbox: outboxRepo, logger: logger}
}

// Insert 写入一条待投递提醒，返回生成的 handle
func (r *NotificationRepository) Insert(ctx context.Context, n *model.ScheduledNotification) (string, error) {
	n.ID = uuid.NewString()
	n.Status = model.NotificationPending
	query := `
        INSERT INTO scheduled_notifications (id, user_id, title, body, fire_at, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at
    `
	if err := r.db.QueryRow(ctx, query,
		n.ID,
		n.UserID,
		n.Title,
		n.Body,
		n.FireAt,
		n.Status,
	).Scan(&n.CreatedAt); err != nil {
		r.logger.Error("Failed to insert scheduled notification",
			zap.Error(err),
			zap.Int("user_id", n.UserID),
		)
		return "", err
	}
	return n.ID, nil
}

// Cancel 取消一条仍处于 pending 的提醒；已投递、已取消或未知的 handle 不报错
func (r *NotificationRepository) Cancel(ctx context.Context, userID int, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	_, err := r.db.Exec(ctx, `
        UPDATE scheduled_notifications
        SET status = $3
        WHERE id = $1 AND user_id = $2 AND status = $4
    `, id, userID, model.NotificationCanceled, model.NotificationPending)
	if err != nil {
		r.logger.Error("Failed to cancel scheduled notification",
			zap.Error(err),
			zap.String("notification_id", id),
		)
	}
	return err
}

// ListPending 返回用户所有待投递的提醒，按触发时间排序
func (r *NotificationRepository) ListPending(ctx context.Context, userID int) ([]model.ScheduledNotification, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id::text, user_id, title, body, fire_at, status, created_at
        FROM scheduled_notifications
        WHERE user_id = $1 AND status = $2
        ORDER BY fire_at ASC
    `, userID, model.NotificationPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.ScheduledNotification{}
	for rows.Next() {
		var n model.ScheduledNotification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.FireAt, &n.Status, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// ClaimDue 把已到期的提醒标记为 dispatched，并在同一事务里写入 reminder.due 事件
func (r *NotificationRepository) ClaimDue(ctx context.Context, now time.Time, limit int) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
        UPDATE scheduled_notifications
        SET status = $1
        WHERE id IN (
            SELECT id FROM scheduled_notifications
            WHERE status = $2 AND fire_at <= $3
            ORDER BY fire_at ASC
            LIMIT $4
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id::text, user_id, title, body, fire_at
    `, model.NotificationDispatched, model.NotificationPending, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to claim due notifications: %w", err)
	}

	var due []mqcontracts.ReminderDuePayload
	for rows.Next() {
		var p mqcontracts.ReminderDuePayload
		if err := rows.Scan(&p.NotificationID, &p.UserID, &p.Title, &p.Body, &p.FireAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan due notification: %w", err)
		}
		due = append(due, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, p := range due {
		if err := outbox.InsertEventInTx(ctx, tx, r.outbox, reminderAggregate, p.NotificationID, mqcontracts.RoutingReminderDue, p); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(due), nil
}
