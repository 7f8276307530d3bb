package transports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"pulsekeep/internal/models"
)

type ntfyTransport struct {
	http *httpSender
	deps Deps
}

func (t *ntfyTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	s := channel.Ntfy()
	// Priority 0 on a direction means that direction is muted.
	if status == models.StatusDown {
		return s.Priority == 0
	}
	return s.PriorityUp == 0
}

func (t *ntfyTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	s := channel.Ntfy()
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	priority := s.Priority
	if flip.NewStatus == models.StatusUp {
		priority = s.PriorityUp
	}

	payload, _ := json.Marshal(map[string]any{
		"topic":    s.Topic,
		"title":    mc.Subject(),
		"message":  mc.Text(),
		"priority": priority,
		"tags":     check.TagsList(),
	})

	headers := map[string]string{"Content-Type": "application/json"}
	if s.Token != "" {
		headers["Authorization"] = "Bearer " + s.Token
	}
	return t.http.do(ctx, request{
		method:  http.MethodPost,
		url:     s.URL,
		headers: headers,
		body:    payload,
	})
}

type gotifyTransport struct {
	http *httpSender
	deps Deps
}

func (t *gotifyTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *gotifyTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	s := channel.Gotify()
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	endpoint, err := url.JoinPath(s.URL, "message")
	if err != nil {
		return permanentError("bad gotify url: %s", err)
	}
	endpoint += "?token=" + url.QueryEscape(s.Token)

	priority := 2
	if flip.NewStatus == models.StatusDown {
		priority = 8
	}
	payload, _ := json.Marshal(map[string]any{
		"title":    mc.Subject(),
		"message":  mc.Text(),
		"priority": priority,
	})

	classify := func(status int, body []byte) error {
		// 401/403 mean the application token was deleted.
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return permanentError("received status code %d", status)
		}
		return nil
	}
	return t.http.postJSON(ctx, endpoint, payload, classify)
}
