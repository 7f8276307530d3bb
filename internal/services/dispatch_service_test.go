package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsekeep/internal/config"
	"pulsekeep/internal/models"
	"pulsekeep/internal/transports"
)

type dispatchFixture struct {
	checks        *memCheckStore
	channels      *memChannelStore
	flips         *memFlipStore
	notifications *memNotificationStore
	queue         *memQueue
	svc           *DispatchService
}

func newDispatchFixture(client *http.Client) *dispatchFixture {
	f := &dispatchFixture{
		checks:        newMemCheckStore(),
		channels:      newMemChannelStore(),
		flips:         &memFlipStore{},
		notifications: &memNotificationStore{},
		queue:         &memQueue{},
	}
	registry := transports.NewRegistry(transports.Deps{
		Config:   &config.Config{App: config.AppConfig{SiteURL: "http://localhost:8080"}},
		Channels: f.channels,
		Logger:   discardLogger(),
		Client:   client,
	})
	f.svc = NewDispatchService(f.checks, f.channels, f.flips, f.notifications,
		f.queue, registry, nil, discardLogger())
	return f
}

func (f *dispatchFixture) seedCheck(code string) {
	f.checks.put(&models.Check{
		Code:    code,
		Kind:    models.KindSimple,
		Timeout: time.Hour,
		Grace:   30 * time.Minute,
		Tz:      "UTC",
		Status:  models.StatusDown,
	})
}

func (f *dispatchFixture) subscribe(checkCode string, channel *models.Channel) {
	ctx := context.Background()
	f.channels.Create(ctx, channel)
	subs := append(f.channels.subscriptions[checkCode], channel.Code)
	f.channels.SetSubscriptions(ctx, checkCode, subs)
}

func (f *dispatchFixture) downFlip(checkCode string) *models.Flip {
	flip := &models.Flip{
		CheckCode: checkCode,
		CreatedAt: time.Now(),
		OldStatus: models.StatusGrace,
		NewStatus: models.StatusDown,
		Reason:    models.ReasonTimeout,
	}
	f.flips.Create(context.Background(), flip)
	return flip
}

func TestProcessFlipDeliversWebhook(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newDispatchFixture(srv.Client())
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{
		Code:  "ch1",
		Kind:  models.KindWebhook,
		Value: fmt.Sprintf(`{"method_down":"POST","url_down":%q}`, srv.URL),
	})
	flip := f.downFlip("c1")

	f.svc.ProcessFlip(context.Background(), flip.ID)

	assert.EqualValues(t, 1, hits.Load())

	ns := f.notifications.all()
	require.Len(t, ns, 1)
	assert.Equal(t, models.NotificationDelivered, ns[0].Error)
	assert.Equal(t, "ch1", ns[0].ChannelCode)
	assert.Equal(t, models.StatusDown, ns[0].CheckStatus)

	stored, _ := f.flips.GetByID(context.Background(), flip.ID)
	assert.NotNil(t, stored.Processed)
}

func TestProcessFlipClaimsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	f := newDispatchFixture(srv.Client())
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{
		Code:  "ch1",
		Kind:  models.KindWebhook,
		Value: fmt.Sprintf(`{"url_down":%q}`, srv.URL),
	})
	flip := f.downFlip("c1")

	f.svc.ProcessFlip(context.Background(), flip.ID)
	f.svc.ProcessFlip(context.Background(), flip.ID)

	assert.EqualValues(t, 1, hits.Load())
	assert.Len(t, f.notifications.all(), 1)
}

func TestProcessFlipSkipsNonActionable(t *testing.T) {
	f := newDispatchFixture(nil)
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{
		Code:  "ch1",
		Kind:  models.KindWebhook,
		Value: `{"url_down":"http://example.org"}`,
	})

	flip := &models.Flip{
		CheckCode: "c1",
		CreatedAt: time.Now(),
		OldStatus: models.StatusNew,
		NewStatus: models.StatusUp,
		Reason:    models.ReasonPing,
	}
	f.flips.Create(context.Background(), flip)

	f.svc.ProcessFlip(context.Background(), flip.ID)

	assert.Empty(t, f.notifications.all())
	stored, _ := f.flips.GetByID(context.Background(), flip.ID)
	assert.NotNil(t, stored.Processed, "non-actionable flips are still consumed")
}

func TestProcessFlipSkipsDisabledChannel(t *testing.T) {
	f := newDispatchFixture(nil)
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{
		Code:     "ch1",
		Kind:     models.KindWebhook,
		Value:    `{"url_down":"http://example.org"}`,
		Disabled: true,
	})
	flip := f.downFlip("c1")

	f.svc.ProcessFlip(context.Background(), flip.ID)
	assert.Empty(t, f.notifications.all())
}

func TestProcessFlipSkipsNoopDirection(t *testing.T) {
	f := newDispatchFixture(nil)

	f.checks.put(&models.Check{
		Code: "c1", Kind: models.KindSimple, Timeout: time.Hour,
		Grace: 30 * time.Minute, Tz: "UTC", Status: models.StatusUp,
	})
	// Down-only webhook, recovery flip: nothing to send.
	f.subscribe("c1", &models.Channel{
		Code:  "ch1",
		Kind:  models.KindWebhook,
		Value: `{"url_down":"http://example.org"}`,
	})

	flip := &models.Flip{
		CheckCode: "c1",
		CreatedAt: time.Now(),
		OldStatus: models.StatusDown,
		NewStatus: models.StatusUp,
		Reason:    models.ReasonPing,
	}
	f.flips.Create(context.Background(), flip)

	f.svc.ProcessFlip(context.Background(), flip.ID)
	assert.Empty(t, f.notifications.all())
}

func TestTransientFailureRetriesAndKeepsChannel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newDispatchFixture(srv.Client())
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{Code: "ch1", Kind: models.KindDiscord, Value: srv.URL})
	flip := f.downFlip("c1")

	f.svc.ProcessFlip(context.Background(), flip.ID)

	assert.EqualValues(t, 3, hits.Load(), "transient failures use all attempts")

	ns := f.notifications.all()
	require.Len(t, ns, 1)
	assert.Contains(t, ns[0].Error, "500")

	ch, _ := f.channels.GetByCode(context.Background(), "ch1")
	assert.False(t, ch.Disabled)
	assert.Contains(t, ch.LastError, "500")
	assert.Zero(t, f.channels.failures["ch1"])
}

func TestPermanentFailuresDisableChannel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newDispatchFixture(srv.Client())
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{Code: "ch1", Kind: models.KindDiscord, Value: srv.URL})

	for i := 0; i < 3; i++ {
		flip := f.downFlip("c1")
		f.svc.ProcessFlip(context.Background(), flip.ID)
	}

	// Permanent errors stop retries, so one request per flip.
	assert.EqualValues(t, 3, hits.Load())

	ch, _ := f.channels.GetByCode(context.Background(), "ch1")
	assert.True(t, ch.Disabled)
	assert.Contains(t, ch.LastError, "404")
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	f := newDispatchFixture(srv.Client())
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{Code: "ch1", Kind: models.KindDiscord, Value: srv.URL})

	for i := 0; i < 2; i++ {
		f.svc.ProcessFlip(context.Background(), f.downFlip("c1").ID)
	}
	status.Store(http.StatusOK)
	f.svc.ProcessFlip(context.Background(), f.downFlip("c1").ID)
	status.Store(http.StatusNotFound)
	f.svc.ProcessFlip(context.Background(), f.downFlip("c1").ID)

	ch, _ := f.channels.GetByCode(context.Background(), "ch1")
	assert.False(t, ch.Disabled, "the streak restarts after a successful delivery")
	assert.Equal(t, 1, f.channels.failures["ch1"])
}

func TestDrainBacklog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newDispatchFixture(srv.Client())
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{
		Code:  "ch1",
		Kind:  models.KindWebhook,
		Value: fmt.Sprintf(`{"url_down":%q}`, srv.URL),
	})

	f.downFlip("c1")
	f.downFlip("c1")

	handled := f.svc.DrainBacklog(context.Background())
	assert.Equal(t, 2, handled)
	assert.Len(t, f.notifications.all(), 2)

	// Nothing left on a second pass.
	assert.Zero(t, f.svc.DrainBacklog(context.Background()))
}

func TestRunConsumesQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newDispatchFixture(srv.Client())
	f.seedCheck("c1")
	f.subscribe("c1", &models.Channel{
		Code:  "ch1",
		Kind:  models.KindWebhook,
		Value: fmt.Sprintf(`{"url_down":%q}`, srv.URL),
	})

	flip := f.downFlip("c1")
	f.queue.PushFlip(context.Background(), flip.ID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(f.notifications.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
