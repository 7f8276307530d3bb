package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulsekeep/internal/config"
)

func NewPostgres(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("Failed to open connection to postgres")
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		log.Error("Failed to ping database")
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	log.Info("Successfully connected to postgres database")
	return pool, nil
}

// EnsureSchema creates the tables on startup so a fresh database works
// without a separate migration step.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS checks (
			code          TEXT PRIMARY KEY,
			project_id    TEXT NOT NULL DEFAULT '',
			name          TEXT NOT NULL DEFAULT '',
			tags          TEXT NOT NULL DEFAULT '',
			kind          TEXT NOT NULL DEFAULT 'simple',
			timeout       BIGINT NOT NULL,
			grace         BIGINT NOT NULL,
			schedule      TEXT NOT NULL DEFAULT '* * * * *',
			tz            TEXT NOT NULL DEFAULT 'UTC',
			manual_resume BOOLEAN NOT NULL DEFAULT FALSE,
			n_pings       INTEGER NOT NULL DEFAULT 0,
			last_ping     TIMESTAMPTZ,
			last_start    TIMESTAMPTZ,
			last_duration BIGINT,
			alert_after   TIMESTAMPTZ,
			status        TEXT NOT NULL DEFAULT 'new',
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_alert_after ON checks (alert_after) WHERE alert_after IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS pings (
			id          BIGSERIAL PRIMARY KEY,
			check_code  TEXT NOT NULL REFERENCES checks(code) ON DELETE CASCADE,
			n           INTEGER NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			action      TEXT NOT NULL DEFAULT '',
			scheme      TEXT NOT NULL DEFAULT '',
			remote_addr TEXT NOT NULL DEFAULT '',
			method      TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			body        TEXT NOT NULL DEFAULT '',
			exit_status INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pings_check ON pings (check_code, id DESC)`,
		`CREATE TABLE IF NOT EXISTS flips (
			id         BIGSERIAL PRIMARY KEY,
			check_code TEXT NOT NULL REFERENCES checks(code) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			processed  TIMESTAMPTZ,
			old_status TEXT NOT NULL,
			new_status TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flips_unprocessed ON flips (id) WHERE processed IS NULL`,
		`CREATE TABLE IF NOT EXISTS channels (
			code               TEXT PRIMARY KEY,
			project_id         TEXT NOT NULL DEFAULT '',
			name               TEXT NOT NULL DEFAULT '',
			kind               TEXT NOT NULL,
			value              TEXT NOT NULL DEFAULT '',
			disabled           BOOLEAN NOT NULL DEFAULT FALSE,
			last_error         TEXT NOT NULL DEFAULT '',
			permanent_failures INTEGER NOT NULL DEFAULT 0,
			created_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			check_code   TEXT NOT NULL REFERENCES checks(code) ON DELETE CASCADE,
			channel_code TEXT NOT NULL REFERENCES channels(code) ON DELETE CASCADE,
			PRIMARY KEY (check_code, channel_code)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			code         TEXT PRIMARY KEY,
			check_code   TEXT,
			channel_code TEXT NOT NULL,
			check_status TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			error        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS token_buckets (
			key     TEXT PRIMARY KEY,
			tokens  DOUBLE PRECISION NOT NULL,
			updated TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
