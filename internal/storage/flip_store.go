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

type flipStore struct {
	pool *pgxpool.Pool
}

func NewFlipStore(pool *pgxpool.Pool) FlipStore {
	return &flipStore{pool: pool}
}

const flipColumns = `id, check_code, created_at, processed, old_status, new_status, reason`

func scanFlip(row pgx.Row) (*models.Flip, error) {
	var f models.Flip
	err := row.Scan(
		&f.ID,
		&f.CheckCode,
		&f.CreatedAt,
		&f.Processed,
		&f.OldStatus,
		&f.NewStatus,
		&f.Reason,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *flipStore) Create(ctx context.Context, flip *models.Flip) error {
	query := `INSERT INTO flips (check_code, created_at, old_status, new_status, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		flip.CheckCode,
		flip.CreatedAt,
		flip.OldStatus,
		flip.NewStatus,
		flip.Reason,
	).Scan(&flip.ID)
}

func (s *flipStore) GetByID(ctx context.Context, id int64) (*models.Flip, error) {
	query := `SELECT ` + flipColumns + ` FROM flips WHERE id = $1`

	flip, err := scanFlip(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return flip, err
}

func (s *flipStore) ListForCheck(ctx context.Context, checkCode string, after time.Time) ([]*models.Flip, error) {
	query := `SELECT ` + flipColumns + ` FROM flips
		WHERE check_code = $1 AND created_at > $2
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, checkCode, after)
	if err != nil {
		return nil, fmt.Errorf("list flips: %w", err)
	}
	defer rows.Close()

	var flips []*models.Flip
	for rows.Next() {
		flip, err := scanFlip(rows)
		if err != nil {
			return nil, fmt.Errorf("list flips: failed to scan row: %w", err)
		}
		flips = append(flips, flip)
	}
	return flips, rows.Err()
}

func (s *flipStore) Claim(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE flips SET processed = $2 WHERE id = $1 AND processed IS NULL`

	tag, err := s.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return false, fmt.Errorf("claim flip: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *flipStore) NextUnprocessed(ctx context.Context) (*models.Flip, error) {
	query := `SELECT ` + flipColumns + ` FROM flips
		WHERE processed IS NULL ORDER BY id LIMIT 1`

	flip, err := scanFlip(s.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return flip, err
}

func (s *flipStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flips WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune flips: %w", err)
	}
	return tag.RowsAffected(), nil
}
