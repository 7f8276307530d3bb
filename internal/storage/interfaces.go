package storage

import (
	"context"
	"time"

	"pulsekeep/internal/models"
)

// CheckStore persists checks. Status transitions go through conditional
// updates keyed on the expected prior status, so concurrent sweepers and
// ping handlers cannot double-apply a transition.
type CheckStore interface {
	Create(ctx context.Context, check *models.Check) error
	GetByCode(ctx context.Context, code string) (*models.Check, error)
	List(ctx context.Context, projectID string, limit, offset int) ([]*models.Check, error)
	Update(ctx context.Context, check *models.Check) error
	Delete(ctx context.Context, code string) error

	// ApplyPing writes the ping-derived fields and the new status in one
	// guarded update. Reports the new ping sequence number and whether the
	// guard (status still equals expect) held.
	ApplyPing(ctx context.Context, check *models.Check, expect models.CheckStatus) (int, bool, error)

	// UpdateStatusIf transitions code from one status to another, setting
	// alert_after along the way. Reports false when another worker got
	// there first.
	UpdateStatusIf(ctx context.Context, code string, from, to models.CheckStatus, alertAfter *time.Time) (bool, error)

	// PostponeAlert pushes alert_after forward without touching status,
	// used to keep a miscomputing check from crash-looping the sweeper.
	PostponeAlert(ctx context.Context, code string, until time.Time) error

	// Due returns non-paused, non-down checks whose alert_after has passed.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.Check, error)

	// DueForGrace returns checks still marked up whose grace window has
	// started. alert_after holds the down deadline; the window start is
	// alert_after minus the grace duration.
	DueForGrace(ctx context.Context, now time.Time, limit int) ([]*models.Check, error)
}

type PingStore interface {
	Create(ctx context.Context, ping *models.Ping) error
	Latest(ctx context.Context, checkCode string) (*models.Ping, error)
	List(ctx context.Context, checkCode string, limit int) ([]*models.Ping, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type FlipStore interface {
	Create(ctx context.Context, flip *models.Flip) error
	GetByID(ctx context.Context, id int64) (*models.Flip, error)
	ListForCheck(ctx context.Context, checkCode string, after time.Time) ([]*models.Flip, error)

	// Claim marks the flip processed. Reports false if another worker
	// already claimed it.
	Claim(ctx context.Context, id int64) (bool, error)

	// NextUnprocessed returns the oldest unclaimed flip, or nil. Fallback
	// for flips whose queue message was lost.
	NextUnprocessed(ctx context.Context) (*models.Flip, error)

	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type ChannelStore interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByCode(ctx context.Context, code string) (*models.Channel, error)
	ListForProject(ctx context.Context, projectID string) ([]*models.Channel, error)
	ListForCheck(ctx context.Context, checkCode string) ([]*models.Channel, error)
	SetSubscriptions(ctx context.Context, checkCode string, channelCodes []string) error
	Delete(ctx context.Context, code string) error

	UpdateValue(ctx context.Context, code, value string) error
	UpdateLastError(ctx context.Context, code, lastError string) error

	// RecordPermanentFailure bumps the consecutive permanent-failure
	// counter and returns its new value; RecordSuccess resets it.
	RecordPermanentFailure(ctx context.Context, code string) (int, error)
	RecordSuccess(ctx context.Context, code string) error
	Disable(ctx context.Context, code, reason string) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByCode(ctx context.Context, code string) (*models.Notification, error)
	UpdateError(ctx context.Context, code, errMsg string) error
}

// BucketStore persists token buckets with compare-and-swap updates.
type BucketStore interface {
	Get(ctx context.Context, key string) (*models.TokenBucket, error)

	// Insert creates the bucket; reports false if the key already exists.
	Insert(ctx context.Context, bucket *models.TokenBucket) (bool, error)

	// UpdateIf overwrites tokens/updated only while the stored updated
	// timestamp still equals expect; reports whether the guard held.
	UpdateIf(ctx context.Context, bucket *models.TokenBucket, expect time.Time) (bool, error)
}

// Queue carries flip IDs from the processes that create flips to the
// dispatch workers.
type Queue interface {
	PushFlip(ctx context.Context, flipID int64) error
	PopFlip(ctx context.Context, timeout time.Duration) (int64, bool, error)
	Length(ctx context.Context) (int64, error)
	Close() error
}
