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

type bucketStore struct {
	pool *pgxpool.Pool
}

func NewBucketStore(pool *pgxpool.Pool) BucketStore {
	return &bucketStore{pool: pool}
}

func (s *bucketStore) Get(ctx context.Context, key string) (*models.TokenBucket, error) {
	query := `SELECT key, tokens, updated FROM token_buckets WHERE key = $1`

	var b models.TokenBucket
	err := s.pool.QueryRow(ctx, query, key).Scan(&b.Key, &b.Tokens, &b.Updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *bucketStore) Insert(ctx context.Context, bucket *models.TokenBucket) (bool, error) {
	query := `INSERT INTO token_buckets (key, tokens, updated)
		VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, bucket.Key, bucket.Tokens, bucket.Updated)
	if err != nil {
		return false, fmt.Errorf("insert bucket: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *bucketStore) UpdateIf(ctx context.Context, bucket *models.TokenBucket, expect time.Time) (bool, error) {
	query := `UPDATE token_buckets SET tokens = $2, updated = $3
		WHERE key = $1 AND updated = $4`

	tag, err := s.pool.Exec(ctx, query, bucket.Key, bucket.Tokens, bucket.Updated, expect)
	if err != nil {
		return false, fmt.Errorf("update bucket: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
