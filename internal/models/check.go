package models

import (
	"fmt"
	"strings"
	"time"

	"pulsekeep/internal/schedule"
)

type CheckKind string

const (
	KindSimple     CheckKind = "simple"
	KindCron       CheckKind = "cron"
	KindOnCalendar CheckKind = "oncalendar"
)

type CheckStatus string

const (
	StatusNew    CheckStatus = "new"
	StatusUp     CheckStatus = "up"
	StatusGrace  CheckStatus = "grace"
	StatusDown   CheckStatus = "down"
	StatusPaused CheckStatus = "paused"
)

const (
	DefaultTimeout = 24 * time.Hour
	DefaultGrace   = time.Hour
)

// MaxStartDelta is the longest gap between a "start" signal and the matching
// completion ping where the two are still considered related.
const MaxStartDelta = 24 * time.Hour

// Check is a monitored job with an expected ping cadence. alert_after is
// always derived from the timing fields, never set directly.
type Check struct {
	Code      string    `json:"code"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Tags      string    `json:"tags"`
	Kind      CheckKind `json:"kind"`

	Timeout  time.Duration `json:"timeout"`
	Grace    time.Duration `json:"grace"`
	Schedule string        `json:"schedule"`
	Tz       string        `json:"tz"`

	ManualResume bool `json:"manual_resume"`

	NPings       int            `json:"n_pings"`
	LastPing     *time.Time     `json:"last_ping"`
	LastStart    *time.Time     `json:"last_start"`
	LastDuration *time.Duration `json:"last_duration,omitempty"`
	AlertAfter   *time.Time     `json:"alert_after"`
	Status       CheckStatus    `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Check) NameThenCode() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Code
}

func (c *Check) TagsList() []string {
	return strings.Fields(c.Tags)
}

// NextExpected returns the instant the next ping is expected after the
// given reference time, based on the check's kind and schedule.
func (c *Check) NextExpected(after time.Time) (time.Time, error) {
	switch c.Kind {
	case KindSimple:
		return after.Add(c.Timeout), nil
	case KindCron:
		loc, err := time.LoadLocation(c.Tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timezone %q: %w", c.Tz, err)
		}
		it, err := schedule.NewCronSim(c.Schedule, after.In(loc))
		if err != nil {
			return time.Time{}, err
		}
		return it.Next(), nil
	case KindOnCalendar:
		loc, err := time.LoadLocation(c.Tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timezone %q: %w", c.Tz, err)
		}
		it, err := schedule.NewOnCalendar(c.Schedule, after.In(loc))
		if err != nil {
			return time.Time{}, err
		}
		next, ok := it.Next()
		if !ok {
			return time.Time{}, fmt.Errorf("schedule %q has no future occurrences", c.Schedule)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("unknown check kind %q", c.Kind)
	}
}

// GraceStart returns the instant the grace period starts: the moment the
// next ping was expected but had not arrived. Nil for checks that are new,
// paused or already down.
func (c *Check) GraceStart() (*time.Time, error) {
	var result *time.Time

	if c.Status == StatusUp || c.Status == StatusGrace {
		if c.LastPing == nil {
			return nil, nil
		}
		expected, err := c.NextExpected(*c.LastPing)
		if err != nil {
			return nil, err
		}
		result = &expected
	}

	// A job that signalled "start" is expected to finish within the grace
	// period, whichever deadline comes first.
	if c.LastStart != nil && c.Status != StatusDown {
		if result == nil || c.LastStart.Before(*result) {
			result = c.LastStart
		}
	}

	return result, nil
}

// GoingDownAfter returns the deadline after which the check is considered
// down, or nil if no deadline currently applies.
func (c *Check) GoingDownAfter() (*time.Time, error) {
	start, err := c.GraceStart()
	if err != nil || start == nil {
		return nil, err
	}
	deadline := start.Add(c.Grace)
	return &deadline, nil
}

// CurrentStatus computes the effective status at the given instant, which
// may differ from the stored status between sweeps.
func (c *Check) CurrentStatus(now time.Time) (CheckStatus, error) {
	if c.LastStart != nil && now.Sub(*c.LastStart) >= c.Grace {
		// Still running, for too long.
		return StatusDown, nil
	}

	if c.Status == StatusNew || c.Status == StatusPaused || c.Status == StatusDown {
		return c.Status, nil
	}

	start, err := c.GraceStart()
	if err != nil {
		return "", err
	}
	if start == nil {
		return c.Status, nil
	}

	if now.Sub(*start) >= c.Grace {
		return StatusDown, nil
	}
	if !now.Before(*start) {
		return StatusGrace, nil
	}
	return StatusUp, nil
}

// RefreshAlertAfter recomputes the derived alert_after field. Call after
// any change to last_ping, timeout, grace, schedule or tz.
func (c *Check) RefreshAlertAfter() error {
	deadline, err := c.GoingDownAfter()
	if err != nil {
		return err
	}
	c.AlertAfter = deadline
	return nil
}
