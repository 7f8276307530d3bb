package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeSpendsBucket(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewRateLimitService(newMemBucketStore(), nil)
	svc.now = func() time.Time { return now }

	// The signal policy allows 6 deliveries per minute.
	for i := 0; i < 6; i++ {
		ok, err := svc.Authorize(context.Background(), "signal", "+123")
		require.NoError(t, err)
		assert.True(t, ok, "delivery %d should pass", i+1)
	}

	ok, err := svc.Authorize(context.Background(), "signal", "+123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeRefillsOverTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewRateLimitService(newMemBucketStore(), nil)
	svc.now = func() time.Time { return now }

	for i := 0; i < 6; i++ {
		ok, err := svc.Authorize(context.Background(), "signal", "+123")
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Ten seconds buys one token back at 6 per minute.
	now = now.Add(10 * time.Second)
	ok, err := svc.Authorize(context.Background(), "signal", "+123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Authorize(context.Background(), "signal", "+123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeRefillCapsAtCapacity(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewRateLimitService(newMemBucketStore(), nil)
	svc.now = func() time.Time { return now }

	ok, err := svc.Authorize(context.Background(), "signal", "+123")
	require.NoError(t, err)
	require.True(t, ok)

	// A week idle does not bank more than the capacity.
	now = now.Add(7 * 24 * time.Hour)
	for i := 0; i < 6; i++ {
		ok, err := svc.Authorize(context.Background(), "signal", "+123")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err = svc.Authorize(context.Background(), "signal", "+123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeBucketsAreIndependent(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewRateLimitService(newMemBucketStore(), nil)
	svc.now = func() time.Time { return now }

	for i := 0; i < 6; i++ {
		ok, err := svc.Authorize(context.Background(), "signal", "+111")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := svc.Authorize(context.Background(), "signal", "+222")
	require.NoError(t, err)
	assert.True(t, ok, "another recipient has a fresh bucket")
}

func TestAuthorizeUnknownPurpose(t *testing.T) {
	store := newMemBucketStore()
	svc := NewRateLimitService(store, nil)

	for i := 0; i < 100; i++ {
		ok, err := svc.Authorize(context.Background(), "webhook", "whatever")
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Empty(t, store.buckets, "unlimited purposes never touch the store")
}
