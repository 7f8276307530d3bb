package transports

import (
	"context"
	"encoding/json"
	"net/http"

	"pulsekeep/internal/models"
)

// slackalikeTransport covers Slack and Mattermost, which share the
// incoming-webhook payload shape.
type slackalikeTransport struct {
	http *httpSender
	kind models.ChannelKind
	deps Deps
}

func (t *slackalikeTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

// Slack deletes revoked webhooks; the API answers 404 or a short fatal
// string for them.
func classifySlack(status int, body []byte) error {
	if status == http.StatusNotFound {
		return permanentError("received status code 404")
	}
	switch string(body) {
	case "invalid_token", "no_team", "no_service", "channel_is_archived", "user_disabled":
		return permanentError("slack rejected the webhook: %s", body)
	}
	return nil
}

func (t *slackalikeTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	payload, _ := json.Marshal(map[string]any{
		"text": mc.Subject() + "\n" + mc.Text(),
	})

	classify := classifySlack
	if t.kind != models.KindSlack {
		classify = nil
	}
	return t.http.postJSON(ctx, channel.Value, payload, classify)
}

type discordTransport struct {
	http *httpSender
	deps Deps
}

func (t *discordTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *discordTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	payload, _ := json.Marshal(map[string]any{
		"content": mc.Subject() + "\n" + mc.Text(),
	})

	classify := func(status int, body []byte) error {
		// Discord returns 404 for deleted webhooks and 401 for bad tokens.
		if status == http.StatusNotFound || status == http.StatusUnauthorized {
			return permanentError("received status code %d", status)
		}
		return nil
	}
	return t.http.postJSON(ctx, channel.Value, payload, classify)
}

type rocketChatTransport struct {
	http *httpSender
	deps Deps
}

func (t *rocketChatTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *rocketChatTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	color := downOrUp(flip.NewStatus, "#dc3545", "#5cb85c")
	payload, _ := json.Marshal(map[string]any{
		"text": mc.Subject(),
		"attachments": []map[string]any{{
			"color": color,
			"text":  mc.Text(),
		}},
	})

	return t.http.postJSON(ctx, channel.Value, payload, nil)
}
