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

type checkStore struct {
	pool *pgxpool.Pool
}

func NewCheckStore(pool *pgxpool.Pool) CheckStore {
	return &checkStore{pool: pool}
}

const checkColumns = `code, project_id, name, tags, kind, timeout, grace, schedule, tz,
	manual_resume, n_pings, last_ping, last_start, last_duration, alert_after, status,
	created_at, updated_at`

func scanCheck(row pgx.Row) (*models.Check, error) {
	var c models.Check
	var timeoutSec, graceSec int64
	var durationSec *int64

	err := row.Scan(
		&c.Code,
		&c.ProjectID,
		&c.Name,
		&c.Tags,
		&c.Kind,
		&timeoutSec,
		&graceSec,
		&c.Schedule,
		&c.Tz,
		&c.ManualResume,
		&c.NPings,
		&c.LastPing,
		&c.LastStart,
		&durationSec,
		&c.AlertAfter,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Timeout = time.Duration(timeoutSec) * time.Second
	c.Grace = time.Duration(graceSec) * time.Second
	if durationSec != nil {
		d := time.Duration(*durationSec) * time.Second
		c.LastDuration = &d
	}
	return &c, nil
}

func durationSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	sec := int64(*d / time.Second)
	return &sec
}

func (s *checkStore) Create(ctx context.Context, check *models.Check) error {
	if check.Code == "" {
		check.Code = uuidutil.New()
	}
	check.CreatedAt = time.Now()
	check.UpdatedAt = check.CreatedAt

	query := `INSERT INTO checks (` + checkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := s.pool.Exec(ctx, query,
		check.Code,
		check.ProjectID,
		check.Name,
		check.Tags,
		check.Kind,
		int64(check.Timeout/time.Second),
		int64(check.Grace/time.Second),
		check.Schedule,
		check.Tz,
		check.ManualResume,
		check.NPings,
		check.LastPing,
		check.LastStart,
		durationSeconds(check.LastDuration),
		check.AlertAfter,
		check.Status,
		check.CreatedAt,
		check.UpdatedAt,
	)
	return err
}

func (s *checkStore) GetByCode(ctx context.Context, code string) (*models.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks WHERE code = $1`

	check, err := scanCheck(s.pool.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return check, err
}

func (s *checkStore) List(ctx context.Context, projectID string, limit, offset int) ([]*models.Check, error) {
	query := `SELECT ` + checkColumns + `
		FROM checks
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list checks: failed to query checks (limit=%d, offset=%d): %w", limit, offset, err)
	}
	defer rows.Close()

	var checks []*models.Check
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("list checks: failed to scan row: %w", err)
		}
		checks = append(checks, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checks: row iteration error: %w", err)
	}
	return checks, nil
}

// Update persists the configuration fields and the derived alert_after.
// Ping bookkeeping fields go through ApplyPing instead.
func (s *checkStore) Update(ctx context.Context, check *models.Check) error {
	check.UpdatedAt = time.Now()

	query := `UPDATE checks SET
			name = $2, tags = $3, kind = $4, timeout = $5, grace = $6,
			schedule = $7, tz = $8, manual_resume = $9, alert_after = $10,
			updated_at = $11
		WHERE code = $1`

	_, err := s.pool.Exec(ctx, query,
		check.Code,
		check.Name,
		check.Tags,
		check.Kind,
		int64(check.Timeout/time.Second),
		int64(check.Grace/time.Second),
		check.Schedule,
		check.Tz,
		check.ManualResume,
		check.AlertAfter,
		check.UpdatedAt,
	)
	return err
}

func (s *checkStore) Delete(ctx context.Context, code string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checks WHERE code = $1`, code)
	return err
}

func (s *checkStore) ApplyPing(ctx context.Context, check *models.Check, expect models.CheckStatus) (int, bool, error) {
	query := `UPDATE checks SET
			n_pings = n_pings + 1,
			last_ping = $3,
			last_start = $4,
			last_duration = $5,
			alert_after = $6,
			status = $7,
			updated_at = $8
		WHERE code = $1 AND status = $2
		RETURNING n_pings`

	var n int
	err := s.pool.QueryRow(ctx, query,
		check.Code,
		expect,
		check.LastPing,
		check.LastStart,
		durationSeconds(check.LastDuration),
		check.AlertAfter,
		check.Status,
		time.Now(),
	).Scan(&n)

	if errors.Is(err, pgx.ErrNoRows) {
		// Another worker changed the status since we read the check.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("apply ping: %w", err)
	}
	return n, true, nil
}

func (s *checkStore) UpdateStatusIf(ctx context.Context, code string, from, to models.CheckStatus, alertAfter *time.Time) (bool, error) {
	query := `UPDATE checks SET status = $3, alert_after = $4, updated_at = $5
		WHERE code = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, code, from, to, alertAfter, time.Now())
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *checkStore) PostponeAlert(ctx context.Context, code string, until time.Time) error {
	query := `UPDATE checks SET alert_after = $2, updated_at = $3 WHERE code = $1`
	_, err := s.pool.Exec(ctx, query, code, until, time.Now())
	return err
}

func (s *checkStore) Due(ctx context.Context, now time.Time, limit int) ([]*models.Check, error) {
	query := `SELECT ` + checkColumns + `
		FROM checks
		WHERE alert_after < $1 AND status NOT IN ('down', 'paused')
		ORDER BY alert_after
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due checks: %w", err)
	}
	defer rows.Close()

	var checks []*models.Check
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("due checks: failed to scan row: %w", err)
		}
		checks = append(checks, check)
	}
	return checks, rows.Err()
}

func (s *checkStore) DueForGrace(ctx context.Context, now time.Time, limit int) ([]*models.Check, error) {
	query := `SELECT ` + checkColumns + `
		FROM checks
		WHERE status = 'up'
			AND alert_after IS NOT NULL
			AND alert_after - (grace * interval '1 second') < $1
		ORDER BY alert_after
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("grace-due checks: %w", err)
	}
	defer rows.Close()

	var checks []*models.Check
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("grace-due checks: failed to scan row: %w", err)
		}
		checks = append(checks, check)
	}
	return checks, rows.Err()
}
