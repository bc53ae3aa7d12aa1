package repository

import (
	"context"
	"errors"

	"eztodo/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DeviceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDeviceRepository(db *pgxpool.Pool, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{db: db, logger: logger}
}

// Upsert 每个用户保留一条最新的设备登记
func (r *DeviceRepository) Upsert(ctx context.Context, d *model.Device) error {
	query := `
        INSERT INTO devices (user_id, platform, push_token, granted, channel_id, channel_name, importance, vibration_pattern, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET platform = EXCLUDED.platform,
            push_token = EXCLUDED.push_token,
            granted = EXCLUDED.granted,
            channel_id = EXCLUDED.channel_id,
            channel_name = EXCLUDED.channel_name,
            importance = EXCLUDED.importance,
            vibration_pattern = EXCLUDED.vibration_pattern,
            updated_at = NOW()
        RETURNING updated_at
    `
	vibration := d.VibrationMillis
	if vibration == nil {
		vibration = []int{}
	}
	err := r.db.QueryRow(ctx, query,
		d.UserID,
		d.Platform,
		d.PushToken,
		d.Granted,
		d.ChannelID,
		d.ChannelName,
		d.Importance,
		vibration,
	).Scan(&d.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert device",
			zap.Error(err),
			zap.Int("user_id", d.UserID),
		)
		return err
	}
	r.logger.Info("Device registered",
		zap.Int("user_id", d.UserID),
		zap.String("platform", d.Platform),
		zap.Bool("granted", d.Granted),
	)
	return nil
}

// FindByUser 返回 (nil, nil) 表示该用户尚未登记设备
func (r *DeviceRepository) FindByUser(ctx context.Context, userID int) (*model.Device, error) {
	query := `
        SELECT user_id, platform, push_token, granted, channel_id, channel_name, importance, vibration_pattern, updated_at
        FROM devices
        WHERE user_id = $1
    `
	var d model.Device
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&d.UserID,
		&d.Platform,
		&d.PushToken,
		&d.Granted,
		&d.ChannelID,
		&d.ChannelName,
		&d.Importance,
		&d.VibrationMillis,
		&d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Granted 用户是否已授权通知
func (r *DeviceRepository) Granted(ctx context.Context, userID int) (bool, error) {
	d, err := r.FindByUser(ctx, userID)
	if err != nil || d == nil {
		return false, err
	}
	return d.Granted, nil
}
