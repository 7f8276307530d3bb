package transports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"pulsekeep/internal/models"

	"github.com/google/uuid"
)

// matrixTransport sends messages with the client-server API. The channel
// value is the room id.
type matrixTransport struct {
	http *httpSender
	deps Deps
}

func (t *matrixTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *matrixTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	cfg := t.deps.Config.Transports.Matrix
	if !cfg.Enabled() {
		return permanentError("matrix delivery is not configured")
	}

	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	// A fresh transaction id per delivery; retries of the same HTTP call
	// reuse it, so the homeserver deduplicates.
	endpoint := cfg.Homeserver + "/_matrix/client/v3/rooms/" +
		url.PathEscape(channel.Value) + "/send/m.room.message/" + uuid.NewString()

	payload, _ := json.Marshal(map[string]any{
		"msgtype": "m.text",
		"body":    mc.Subject() + "\n" + mc.Text(),
	})

	classify := func(status int, body []byte) error {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return permanentError("received status code %d", status)
		}
		return nil
	}
	return t.http.do(ctx, request{
		method: http.MethodPut,
		url:    endpoint,
		headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + cfg.AccessToken,
		},
		body:     payload,
		classify: classify,
	})
}

type msTeamsTransport struct {
	http *httpSender
	deps Deps
}

func (t *msTeamsTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *msTeamsTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	color := downOrUp(flip.NewStatus, "DC3545", "5CB85C")
	payload, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"themeColor": color,
		"title":      mc.Subject(),
		"text":       mc.Text(),
	})
	return t.http.postJSON(ctx, channel.Value, payload, nil)
}
