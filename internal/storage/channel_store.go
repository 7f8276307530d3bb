package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulsekeep/internal/models"
	"pulsekeep/pkg/uuidutil"
)

type channelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) ChannelStore {
	return &channelStore{pool: pool}
}

const channelColumns = `code, project_id, name, kind, value, disabled, last_error, created_at`

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var c models.Channel
	err := row.Scan(
		&c.Code,
		&c.ProjectID,
		&c.Name,
		&c.Kind,
		&c.Value,
		&c.Disabled,
		&c.LastError,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *channelStore) Create(ctx context.Context, channel *models.Channel) error {
	if channel.Code == "" {
		channel.Code = uuidutil.New()
	}
	channel.CreatedAt = time.Now()

	query := `INSERT INTO channels (code, project_id, name, kind, value, disabled, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		channel.Code,
		channel.ProjectID,
		channel.Name,
		channel.Kind,
		channel.Value,
		channel.Disabled,
		channel.LastError,
		channel.CreatedAt,
	)
	return err
}

func (s *channelStore) GetByCode(ctx context.Context, code string) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE code = $1`

	channel, err := scanChannel(s.pool.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return channel, err
}

func (s *channelStore) ListForProject(ctx context.Context, projectID string) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels
		WHERE project_id = $1 ORDER BY created_at`

	return s.queryChannels(ctx, query, projectID)
}

func (s *channelStore) ListForCheck(ctx context.Context, checkCode string) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels c
		JOIN subscriptions sub ON sub.channel_code = c.code
		WHERE sub.check_code = $1
		ORDER BY c.created_at`

	return s.queryChannels(ctx, query, checkCode)
}

func (s *channelStore) queryChannels(ctx context.Context, query string, args ...any) ([]*models.Channel, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("list channels: failed to scan row: %w", err)
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

func (s *channelStore) SetSubscriptions(ctx context.Context, checkCode string, channelCodes []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("set subscriptions: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE check_code = $1`, checkCode); err != nil {
		return fmt.Errorf("set subscriptions: %w", err)
	}
	for _, code := range channelCodes {
		_, err := tx.Exec(ctx,
			`INSERT INTO subscriptions (check_code, channel_code) VALUES ($1, $2)`,
			checkCode, code)
		if err != nil {
			return fmt.Errorf("set subscriptions: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *channelStore) Delete(ctx context.Context, code string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE code = $1`, code)
	return err
}

func (s *channelStore) UpdateValue(ctx context.Context, code, value string) error {
	_, err := s.pool.Exec(ctx, `UPDATE channels SET value = $2 WHERE code = $1`, code, value)
	return err
}

func (s *channelStore) UpdateLastError(ctx context.Context, code, lastError string) error {
	_, err := s.pool.Exec(ctx, `UPDATE channels SET last_error = $2 WHERE code = $1`, code, lastError)
	return err
}

func (s *channelStore) RecordPermanentFailure(ctx context.Context, code string) (int, error) {
	query := `UPDATE channels SET permanent_failures = permanent_failures + 1
		WHERE code = $1 RETURNING permanent_failures`

	var n int
	if err := s.pool.QueryRow(ctx, query, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("record failure: %w", err)
	}
	return n, nil
}

func (s *channelStore) RecordSuccess(ctx context.Context, code string) error {
	query := `UPDATE channels SET permanent_failures = 0, last_error = '' WHERE code = $1`
	_, err := s.pool.Exec(ctx, query, code)
	return err
}

func (s *channelStore) Disable(ctx context.Context, code, reason string) error {
	query := `UPDATE channels SET disabled = TRUE, last_error = $2 WHERE code = $1`
	_, err := s.pool.Exec(ctx, query, code, reason)
	return err
}
