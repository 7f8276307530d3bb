package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulsekeep/internal/models"
)

type pingStore struct {
	pool *pgxpool.Pool
}

func NewPingStore(pool *pgxpool.Pool) PingStore {
	return &pingStore{pool: pool}
}

const pingColumns = `id, check_code, n, created_at, action, scheme, remote_addr, method,
	user_agent, body, exit_status`

func scanPing(row pgx.Row) (*models.Ping, error) {
	var p models.Ping
	err := row.Scan(
		&p.ID,
		&p.CheckCode,
		&p.N,
		&p.CreatedAt,
		&p.Action,
		&p.Scheme,
		&p.RemoteAddr,
		&p.Method,
		&p.UserAgent,
		&p.Body,
		&p.ExitStatus,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *pingStore) Create(ctx context.Context, ping *models.Ping) error {
	query := `INSERT INTO pings (check_code, n, created_at, action, scheme, remote_addr,
			method, user_agent, body, exit_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		ping.CheckCode,
		ping.N,
		ping.CreatedAt,
		ping.Action,
		ping.Scheme,
		ping.RemoteAddr,
		ping.Method,
		ping.UserAgent,
		ping.Body,
		ping.ExitStatus,
	).Scan(&ping.ID)
}

func (s *pingStore) Latest(ctx context.Context, checkCode string) (*models.Ping, error) {
	query := `SELECT ` + pingColumns + ` FROM pings
		WHERE check_code = $1 ORDER BY id DESC LIMIT 1`

	ping, err := scanPing(s.pool.QueryRow(ctx, query, checkCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ping, err
}

func (s *pingStore) List(ctx context.Context, checkCode string, limit int) ([]*models.Ping, error) {
	query := `SELECT ` + pingColumns + ` FROM pings
		WHERE check_code = $1 ORDER BY id DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, checkCode, limit)
	if err != nil {
		return nil, fmt.Errorf("list pings: %w", err)
	}
	defer rows.Close()

	var pings []*models.Ping
	for rows.Next() {
		ping, err := scanPing(rows)
		if err != nil {
			return nil, fmt.Errorf("list pings: failed to scan row: %w", err)
		}
		pings = append(pings, ping)
	}
	return pings, rows.Err()
}

func (s *pingStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pings WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune pings: %w", err)
	}
	return tag.RowsAffected(), nil
}
