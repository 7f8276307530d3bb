package transports

import (
	"context"
	"net/http"
	"net/url"

	"pulsekeep/internal/models"
)

// trelloTransport files down events as cards on the configured list.
// Recoveries are not announced.
type trelloTransport struct {
	http *httpSender
	deps Deps
}

func (t *trelloTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return status == models.StatusUp
}

func (t *trelloTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	cfg := t.deps.Config.Transports.Trello
	if !cfg.Enabled() {
		return permanentError("trello delivery is not configured")
	}

	s := channel.Trello()
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	params := url.Values{}
	params.Set("idList", s.ListID)
	params.Set("name", mc.Subject())
	params.Set("desc", mc.Text())
	params.Set("key", cfg.AppKey)
	params.Set("token", s.Token)

	classify := func(status int, body []byte) error {
		// 401 means the member revoked the token.
		if status == http.StatusUnauthorized {
			return permanentError("received status code 401")
		}
		return nil
	}
	return t.http.do(ctx, request{
		method:   http.MethodPost,
		url:      "https://api.trello.com/1/cards?" + params.Encode(),
		classify: classify,
	})
}

type zulipTransport struct {
	http *httpSender
	deps Deps
}

func (t *zulipTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *zulipTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	s := channel.Zulip()
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	form := url.Values{}
	form.Set("type", s.Type)
	form.Set("to", s.To)
	form.Set("content", mc.Subject()+"\n"+mc.Text())
	topic := s.Topic
	if topic == "" {
		topic = mc.Subject()
	}
	if s.Type == "stream" {
		form.Set("topic", topic)
	}

	classify := func(status int, body []byte) error {
		if status == http.StatusUnauthorized {
			return permanentError("received status code 401")
		}
		return nil
	}
	return t.http.do(ctx, request{
		method:   http.MethodPost,
		url:      s.Site + "/api/v1/messages",
		headers:  map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		body:     []byte(form.Encode()),
		user:     s.BotEmail,
		password: s.APIKey,
		classify: classify,
	})
}
