package services

import (
	"context"
	"fmt"
	"time"

	"pulsekeep/internal/metrics"
	"pulsekeep/internal/models"
	"pulsekeep/internal/storage"
)

// bucketPolicy sets the capacity and refill rate for one rate-limit
// purpose. Tokens refill continuously; one delivery spends one token.
type bucketPolicy struct {
	capacity     float64
	refillPerSec float64
}

var bucketPolicies = map[string]bucketPolicy{
	"telegram": {capacity: 10, refillPerSec: 10.0 / 60},
	"signal":   {capacity: 6, refillPerSec: 6.0 / 60},
	"po":       {capacity: 6, refillPerSec: 6.0 / 60},
	"sms":      {capacity: 50, refillPerSec: 50.0 / 86400},
}

// RateLimitService implements per-recipient token buckets on top of the
// bucket store. Refill is lazy; contention resolves through the store's
// compare-and-swap update.
type RateLimitService struct {
	buckets storage.BucketStore
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRateLimitService(buckets storage.BucketStore, m *metrics.Metrics) *RateLimitService {
	return &RateLimitService{buckets: buckets, metrics: m, now: time.Now}
}

// Authorize spends one token from the bucket for (purpose, value).
// Purposes without a policy are always allowed.
func (s *RateLimitService) Authorize(ctx context.Context, purpose, value string) (bool, error) {
	policy, ok := bucketPolicies[purpose]
	if !ok {
		return true, nil
	}
	key := purpose + "-" + value

	for attempt := 0; attempt < 3; attempt++ {
		now := s.now()

		bucket, err := s.buckets.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("get bucket %s: %w", key, err)
		}

		if bucket == nil {
			fresh := &models.TokenBucket{Key: key, Tokens: policy.capacity - 1, Updated: now}
			inserted, err := s.buckets.Insert(ctx, fresh)
			if err != nil {
				return false, fmt.Errorf("insert bucket %s: %w", key, err)
			}
			if inserted {
				return true, nil
			}
			// Someone created it concurrently; re-read and spend normally.
			continue
		}

		tokens := bucket.Tokens + now.Sub(bucket.Updated).Seconds()*policy.refillPerSec
		if tokens > policy.capacity {
			tokens = policy.capacity
		}
		if tokens < 1 {
			if s.metrics != nil {
				s.metrics.RateLimitDenials.WithLabelValues(purpose).Inc()
			}
			return false, nil
		}

		updated := &models.TokenBucket{Key: key, Tokens: tokens - 1, Updated: now}
		ok, err := s.buckets.UpdateIf(ctx, updated, bucket.Updated)
		if err != nil {
			return false, fmt.Errorf("update bucket %s: %w", key, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, fmt.Errorf("bucket %s: too much contention", key)
}
