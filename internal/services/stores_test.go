package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pulsekeep/internal/models"
)

// In-memory store implementations for service tests. They mirror the
// guarded-update semantics of the SQL stores, including the cases where
// a compare-and-swap loses.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memCheckStore struct {
	mu     sync.Mutex
	checks map[string]*models.Check

	// failApplies makes the next n ApplyPing calls lose their guard,
	// simulating concurrent writers.
	failApplies int
}

func newMemCheckStore() *memCheckStore {
	return &memCheckStore{checks: make(map[string]*models.Check)}
}

func copyCheck(c *models.Check) *models.Check {
	dup := *c
	return &dup
}

func (s *memCheckStore) put(c *models.Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[c.Code] = copyCheck(c)
}

func (s *memCheckStore) get(code string) *models.Check {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.checks[code]; ok {
		return copyCheck(c)
	}
	return nil
}

func (s *memCheckStore) Create(ctx context.Context, check *models.Check) error {
	if check.Code == "" {
		s.mu.Lock()
		check.Code = fmt.Sprintf("check-%d", len(s.checks)+1)
		s.mu.Unlock()
	}
	s.put(check)
	return nil
}

func (s *memCheckStore) GetByCode(ctx context.Context, code string) (*models.Check, error) {
	return s.get(code), nil
}

func (s *memCheckStore) List(ctx context.Context, projectID string, limit, offset int) ([]*models.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Check
	for _, c := range s.checks {
		if c.ProjectID == projectID {
			out = append(out, copyCheck(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *memCheckStore) Update(ctx context.Context, check *models.Check) error {
	s.put(check)
	return nil
}

func (s *memCheckStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checks, code)
	return nil
}

func (s *memCheckStore) ApplyPing(ctx context.Context, check *models.Check, expect models.CheckStatus) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.checks[check.Code]
	if !ok || stored.Status != expect {
		return 0, false, nil
	}
	if s.failApplies > 0 {
		s.failApplies--
		return 0, false, nil
	}

	dup := copyCheck(check)
	dup.NPings = stored.NPings + 1
	s.checks[check.Code] = dup
	return dup.NPings, true, nil
}

func (s *memCheckStore) UpdateStatusIf(ctx context.Context, code string, from, to models.CheckStatus, alertAfter *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.checks[code]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = to
	stored.AlertAfter = alertAfter
	return true, nil
}

func (s *memCheckStore) PostponeAlert(ctx context.Context, code string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.checks[code]; ok {
		stored.AlertAfter = &until
	}
	return nil
}

func (s *memCheckStore) Due(ctx context.Context, now time.Time, limit int) ([]*models.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Check
	for _, c := range s.checks {
		if c.Status == models.StatusDown || c.Status == models.StatusPaused {
			continue
		}
		if c.AlertAfter != nil && c.AlertAfter.Before(now) {
			out = append(out, copyCheck(c))
		}
	}
	return out, nil
}

func (s *memCheckStore) DueForGrace(ctx context.Context, now time.Time, limit int) ([]*models.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Check
	for _, c := range s.checks {
		if c.Status != models.StatusUp || c.AlertAfter == nil {
			continue
		}
		if c.AlertAfter.Add(-c.Grace).Before(now) {
			out = append(out, copyCheck(c))
		}
	}
	return out, nil
}

type memPingStore struct {
	mu    sync.Mutex
	pings []*models.Ping
}

func (s *memPingStore) Create(ctx context.Context, ping *models.Ping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *ping
	dup.ID = int64(len(s.pings) + 1)
	s.pings = append(s.pings, &dup)
	return nil
}

func (s *memPingStore) Latest(ctx context.Context, checkCode string) (*models.Ping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.pings) - 1; i >= 0; i-- {
		if s.pings[i].CheckCode == checkCode {
			dup := *s.pings[i]
			return &dup, nil
		}
	}
	return nil, nil
}

func (s *memPingStore) List(ctx context.Context, checkCode string, limit int) ([]*models.Ping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Ping
	for i := len(s.pings) - 1; i >= 0 && len(out) < limit; i-- {
		if s.pings[i].CheckCode == checkCode {
			dup := *s.pings[i]
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (s *memPingStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.Ping
	var removed int64
	for _, p := range s.pings {
		if p.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.pings = kept
	return removed, nil
}

type memFlipStore struct {
	mu     sync.Mutex
	nextID int64
	flips  []*models.Flip
}

func (s *memFlipStore) Create(ctx context.Context, flip *models.Flip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	flip.ID = s.nextID
	dup := *flip
	s.flips = append(s.flips, &dup)
	return nil
}

func (s *memFlipStore) GetByID(ctx context.Context, id int64) (*models.Flip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flips {
		if f.ID == id {
			dup := *f
			return &dup, nil
		}
	}
	return nil, nil
}

func (s *memFlipStore) ListForCheck(ctx context.Context, checkCode string, after time.Time) ([]*models.Flip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Flip
	for _, f := range s.flips {
		if f.CheckCode == checkCode && f.CreatedAt.After(after) {
			dup := *f
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (s *memFlipStore) Claim(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flips {
		if f.ID == id {
			if f.Processed != nil {
				return false, nil
			}
			now := time.Now()
			f.Processed = &now
			return true, nil
		}
	}
	return false, nil
}

func (s *memFlipStore) NextUnprocessed(ctx context.Context) (*models.Flip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flips {
		if f.Processed == nil {
			dup := *f
			return &dup, nil
		}
	}
	return nil, nil
}

func (s *memFlipStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.Flip
	var removed int64
	for _, f := range s.flips {
		if f.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	s.flips = kept
	return removed, nil
}

func (s *memFlipStore) all() []*models.Flip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Flip, 0, len(s.flips))
	for _, f := range s.flips {
		dup := *f
		out = append(out, &dup)
	}
	return out
}

type memChannelStore struct {
	mu            sync.Mutex
	channels      map[string]*models.Channel
	subscriptions map[string][]string
	failures      map[string]int
}

func newMemChannelStore() *memChannelStore {
	return &memChannelStore{
		channels:      make(map[string]*models.Channel),
		subscriptions: make(map[string][]string),
		failures:      make(map[string]int),
	}
}

func (s *memChannelStore) Create(ctx context.Context, channel *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel.Code == "" {
		channel.Code = fmt.Sprintf("channel-%d", len(s.channels)+1)
	}
	dup := *channel
	s.channels[channel.Code] = &dup
	return nil
}

func (s *memChannelStore) GetByCode(ctx context.Context, code string) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[code]; ok {
		dup := *c
		return &dup, nil
	}
	return nil, nil
}

func (s *memChannelStore) ListForProject(ctx context.Context, projectID string) ([]*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Channel
	for _, c := range s.channels {
		if c.ProjectID == projectID {
			dup := *c
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (s *memChannelStore) ListForCheck(ctx context.Context, checkCode string) ([]*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Channel
	for _, code := range s.subscriptions[checkCode] {
		if c, ok := s.channels[code]; ok {
			dup := *c
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (s *memChannelStore) SetSubscriptions(ctx context.Context, checkCode string, channelCodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[checkCode] = append([]string(nil), channelCodes...)
	return nil
}

func (s *memChannelStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, code)
	return nil
}

func (s *memChannelStore) UpdateValue(ctx context.Context, code, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[code]; ok {
		c.Value = value
	}
	return nil
}

func (s *memChannelStore) UpdateLastError(ctx context.Context, code, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[code]; ok {
		c.LastError = lastError
	}
	return nil
}

func (s *memChannelStore) RecordPermanentFailure(ctx context.Context, code string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[code]++
	return s.failures[code], nil
}

func (s *memChannelStore) RecordSuccess(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[code] = 0
	return nil
}

func (s *memChannelStore) Disable(ctx context.Context, code, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[code]; ok {
		c.Disabled = true
		c.LastError = reason
	}
	return nil
}

type memNotificationStore struct {
	mu            sync.Mutex
	notifications []*models.Notification
}

func (s *memNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.Code == "" {
		n.Code = fmt.Sprintf("n-%d", len(s.notifications)+1)
	}
	dup := *n
	s.notifications = append(s.notifications, &dup)
	return nil
}

func (s *memNotificationStore) GetByCode(ctx context.Context, code string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.Code == code {
			dup := *n
			return &dup, nil
		}
	}
	return nil, nil
}

func (s *memNotificationStore) UpdateError(ctx context.Context, code, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.Code == code {
			n.Error = errMsg
		}
	}
	return nil
}

func (s *memNotificationStore) all() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		dup := *n
		out = append(out, &dup)
	}
	return out
}

type memBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*models.TokenBucket
}

func newMemBucketStore() *memBucketStore {
	return &memBucketStore{buckets: make(map[string]*models.TokenBucket)}
}

func (s *memBucketStore) Get(ctx context.Context, key string) (*models.TokenBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[key]; ok {
		dup := *b
		return &dup, nil
	}
	return nil, nil
}

func (s *memBucketStore) Insert(ctx context.Context, bucket *models.TokenBucket) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket.Key]; ok {
		return false, nil
	}
	dup := *bucket
	s.buckets[bucket.Key] = &dup
	return true, nil
}

func (s *memBucketStore) UpdateIf(ctx context.Context, bucket *models.TokenBucket, expect time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.buckets[bucket.Key]
	if !ok || !stored.Updated.Equal(expect) {
		return false, nil
	}
	stored.Tokens = bucket.Tokens
	stored.Updated = bucket.Updated
	return true, nil
}

type memQueue struct {
	mu  sync.Mutex
	ids []int64
}

func (q *memQueue) PushFlip(ctx context.Context, flipID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, flipID)
	return nil
}

func (q *memQueue) PopFlip(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return 0, false, nil
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true, nil
}

func (q *memQueue) Length(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ids)), nil
}

func (q *memQueue) Close() error { return nil }
