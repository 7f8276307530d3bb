package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pulsekeep/internal/config"
)

const flipQueueKey = "pulsekeep:flips"

type redisQueue struct {
	client *redis.Client
}

func NewRedisQueue(cfg *config.RedisConfig, log *slog.Logger) (Queue, error) {
	client := redis.NewClient(cfg.Options())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Connected to Redis")
	return &redisQueue{client: client}, nil
}

func (r *redisQueue) PushFlip(ctx context.Context, flipID int64) error {
	err := r.client.LPush(ctx, flipQueueKey, strconv.FormatInt(flipID, 10)).Err()
	if err != nil {
		return fmt.Errorf("failed to push flip %d: %w", flipID, err)
	}
	return nil
}

// PopFlip blocks up to timeout for the next flip ID. The second return is
// false when the queue stayed empty.
func (r *redisQueue) PopFlip(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	result, err := r.client.BRPop(ctx, timeout, flipQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return 0, false, err
		}
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis BRPop failed: %w", err)
	}

	if len(result) < 2 {
		return 0, false, fmt.Errorf("invalid BRPop result: expected 2 elements, got %d", len(result))
	}

	id, err := strconv.ParseInt(result[1], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid flip id %q in queue: %w", result[1], err)
	}
	return id, true, nil
}

func (r *redisQueue) Length(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, flipQueueKey).Result()
}

func (r *redisQueue) Close() error {
	return r.client.Close()
}
