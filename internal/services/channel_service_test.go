package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsekeep/internal/config"
	"pulsekeep/internal/models"
	"pulsekeep/internal/transports"
)

type channelFixture struct {
	channels      *memChannelStore
	notifications *memNotificationStore
	svc           *ChannelService
}

func newChannelFixture(client *http.Client) *channelFixture {
	f := &channelFixture{
		channels:      newMemChannelStore(),
		notifications: &memNotificationStore{},
	}
	registry := transports.NewRegistry(transports.Deps{
		Config:   &config.Config{App: config.AppConfig{SiteURL: "http://localhost:8080"}},
		Channels: f.channels,
		Logger:   discardLogger(),
		Client:   client,
	})
	f.svc = NewChannelService(f.channels, f.notifications, registry, discardLogger())
	return f
}

func TestCreateChannel(t *testing.T) {
	f := newChannelFixture(nil)

	channel, err := f.svc.CreateChannel(context.Background(), "proj", "ops hook",
		models.KindWebhook, `{"url_down":"http://example.org"}`)
	require.NoError(t, err)

	assert.NotEmpty(t, channel.Code)
	assert.Equal(t, models.KindWebhook, channel.Kind)

	stored, _ := f.channels.GetByCode(context.Background(), channel.Code)
	require.NotNil(t, stored)
	assert.Equal(t, "ops hook", stored.Name)
}

func TestCreateChannelRejectsUnknownKind(t *testing.T) {
	f := newChannelFixture(nil)

	_, err := f.svc.CreateChannel(context.Background(), "proj", "x", "fax", "555")
	assert.ErrorContains(t, err, "unknown channel kind")
}

func TestDeleteChannel(t *testing.T) {
	f := newChannelFixture(nil)
	ctx := context.Background()
	f.channels.Create(ctx, &models.Channel{Code: "ch1", ProjectID: "proj", Kind: models.KindEmail})

	require.NoError(t, f.svc.DeleteChannel(ctx, "ch1"))
	assert.ErrorIs(t, f.svc.DeleteChannel(ctx, "ch1"), ErrChannelNotFound)
}

func TestSendTest(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
	}))
	defer srv.Close()

	f := newChannelFixture(srv.Client())
	ctx := context.Background()
	f.channels.Create(ctx, &models.Channel{
		Code: "ch1", ProjectID: "proj", Kind: models.KindWebhook,
		Value: fmt.Sprintf(`{"method_down":"POST","url_down":%q,"body_down":"$NAME is $STATUS"}`, srv.URL),
	})

	require.NoError(t, f.svc.SendTest(ctx, "ch1"))
	assert.Equal(t, "Test Check is down", gotBody)

	ns := f.notifications.all()
	require.Len(t, ns, 1)
	assert.Equal(t, models.NotificationDelivered, ns[0].Error)
	assert.Nil(t, ns[0].CheckCode, "test sends are not tied to a check")
}

func TestSendTestReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newChannelFixture(srv.Client())
	ctx := context.Background()
	f.channels.Create(ctx, &models.Channel{Code: "ch1", ProjectID: "proj", Kind: models.KindDiscord, Value: srv.URL})

	err := f.svc.SendTest(ctx, "ch1")
	require.Error(t, err)

	ns := f.notifications.all()
	require.Len(t, ns, 1)
	assert.Contains(t, ns[0].Error, "404")
}

func TestSendTestUnknownChannel(t *testing.T) {
	f := newChannelFixture(nil)
	assert.ErrorIs(t, f.svc.SendTest(context.Background(), "nope"), ErrChannelNotFound)
}
