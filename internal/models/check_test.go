package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(t time.Time) *time.Time { return &t }

func simpleCheck() *Check {
	return &Check{
		Code:    "5e2e27bc-8bd0-4e02-b4ab-05bb6cd6e861",
		Kind:    KindSimple,
		Timeout: time.Hour,
		Grace:   30 * time.Minute,
		Tz:      "UTC",
		Status:  StatusUp,
	}
}

func TestNextExpectedSimple(t *testing.T) {
	c := simpleCheck()
	after := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	got, err := c.NextExpected(after)
	require.NoError(t, err)
	assert.Equal(t, after.Add(time.Hour), got)
}

func TestNextExpectedCron(t *testing.T) {
	c := simpleCheck()
	c.Kind = KindCron
	c.Schedule = "0 6 * * *"
	c.Tz = "Europe/Berlin"

	after := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) // 12:00 in Berlin

	got, err := c.NextExpected(after)
	require.NoError(t, err)
	// 06:00 Berlin is 04:00 UTC in summer.
	assert.Equal(t, time.Date(2024, 6, 2, 4, 0, 0, 0, time.UTC), got.UTC())
}

func TestNextExpectedOnCalendar(t *testing.T) {
	c := simpleCheck()
	c.Kind = KindOnCalendar
	c.Schedule = "12:00"

	after := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	got, err := c.NextExpected(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), got.UTC())
}

func TestNextExpectedBadTimezone(t *testing.T) {
	c := simpleCheck()
	c.Kind = KindCron
	c.Schedule = "* * * * *"
	c.Tz = "Mars/Olympus"

	_, err := c.NextExpected(time.Now())
	assert.Error(t, err)
}

func TestGraceStart(t *testing.T) {
	lastPing := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("up check", func(t *testing.T) {
		c := simpleCheck()
		c.LastPing = ts(lastPing)

		got, err := c.GraceStart()
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, lastPing.Add(time.Hour), *got)
	})

	t.Run("new check has no deadline", func(t *testing.T) {
		c := simpleCheck()
		c.Status = StatusNew

		got, err := c.GraceStart()
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("running start wins when earlier", func(t *testing.T) {
		c := simpleCheck()
		c.LastPing = ts(lastPing)
		c.LastStart = ts(lastPing.Add(10 * time.Minute))

		got, err := c.GraceStart()
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, *c.LastStart, *got)
	})

	t.Run("down check ignores start", func(t *testing.T) {
		c := simpleCheck()
		c.Status = StatusDown
		c.LastStart = ts(lastPing)

		got, err := c.GraceStart()
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestGoingDownAfter(t *testing.T) {
	lastPing := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c := simpleCheck()
	c.LastPing = ts(lastPing)

	got, err := c.GoingDownAfter()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, lastPing.Add(time.Hour).Add(30*time.Minute), *got)
}

func TestCurrentStatus(t *testing.T) {
	lastPing := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want CheckStatus
	}{
		{"before deadline", lastPing.Add(59 * time.Minute), StatusUp},
		{"inside grace", lastPing.Add(70 * time.Minute), StatusGrace},
		{"past grace", lastPing.Add(91 * time.Minute), StatusDown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := simpleCheck()
			c.LastPing = ts(lastPing)

			got, err := c.CurrentStatus(tc.now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCurrentStatusPassthrough(t *testing.T) {
	for _, status := range []CheckStatus{StatusNew, StatusPaused, StatusDown} {
		c := simpleCheck()
		c.Status = status

		got, err := c.CurrentStatus(time.Now())
		require.NoError(t, err)
		assert.Equal(t, status, got)
	}
}

func TestCurrentStatusLongRunningStart(t *testing.T) {
	started := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c := simpleCheck()
	c.LastPing = ts(started.Add(-time.Minute))
	c.LastStart = ts(started)

	got, err := c.CurrentStatus(started.Add(31 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusDown, got)
}

func TestRefreshAlertAfter(t *testing.T) {
	lastPing := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c := simpleCheck()
	c.LastPing = ts(lastPing)

	require.NoError(t, c.RefreshAlertAfter())
	require.NotNil(t, c.AlertAfter)
	assert.Equal(t, lastPing.Add(90*time.Minute), *c.AlertAfter)

	c.Status = StatusNew
	c.LastStart = nil
	require.NoError(t, c.RefreshAlertAfter())
	assert.Nil(t, c.AlertAfter)
}

func TestTagsList(t *testing.T) {
	c := &Check{Tags: "  prod  db backup "}
	assert.Equal(t, []string{"prod", "db", "backup"}, c.TagsList())

	c.Tags = ""
	assert.Empty(t, c.TagsList())
}

func TestNameThenCode(t *testing.T) {
	c := &Check{Code: "abc", Name: "Nightly backup"}
	assert.Equal(t, "Nightly backup", c.NameThenCode())

	c.Name = ""
	assert.Equal(t, "abc", c.NameThenCode())
}

func TestFlipActionable(t *testing.T) {
	cases := []struct {
		old, new CheckStatus
		want     bool
	}{
		{StatusNew, StatusUp, false},
		{StatusPaused, StatusUp, false},
		{StatusDown, StatusUp, true},
		{StatusGrace, StatusUp, true},
		{StatusUp, StatusDown, true},
		{StatusGrace, StatusDown, true},
		{StatusNew, StatusDown, true},
		{StatusUp, StatusGrace, false},
		{StatusUp, StatusPaused, false},
	}
	for _, tc := range cases {
		f := &Flip{OldStatus: tc.old, NewStatus: tc.new}
		assert.Equal(t, tc.want, f.Actionable(), "%s -> %s", tc.old, tc.new)
	}
}
