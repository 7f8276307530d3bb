package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulsekeep/internal/models"
	"pulsekeep/pkg/uuidutil"
)

type notificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) NotificationStore {
	return &notificationStore{pool: pool}
}

func (s *notificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n.Code == "" {
		n.Code = uuidutil.New()
	}
	n.CreatedAt = time.Now()

	query := `INSERT INTO notifications (code, check_code, channel_code, check_status, created_at, error)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		n.Code,
		n.CheckCode,
		n.ChannelCode,
		n.CheckStatus,
		n.CreatedAt,
		n.Error,
	)
	return err
}

func (s *notificationStore) GetByCode(ctx context.Context, code string) (*models.Notification, error) {
	query := `SELECT code, check_code, channel_code, check_status, created_at, error
		FROM notifications WHERE code = $1`

	var n models.Notification
	err := s.pool.QueryRow(ctx, query, code).Scan(
		&n.Code,
		&n.CheckCode,
		&n.ChannelCode,
		&n.CheckStatus,
		&n.CreatedAt,
		&n.Error,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *notificationStore) UpdateError(ctx context.Context, code, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE notifications SET error = $2 WHERE code = $1`, code, errMsg)
	return err
}
