package transports

import (
	"context"
	"encoding/json"
	"net/http"

	"pulsekeep/internal/models"
)

// opsgenieTransport creates and closes Opsgenie alerts, using the check
// code as the deduplication alias.
type opsgenieTransport struct {
	http *httpSender
	deps Deps
}

func (t *opsgenieTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *opsgenieTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	settings := channel.Opsgenie()
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	base := "https://api.opsgenie.com"
	if settings.Region == "eu" {
		base = "https://api.eu.opsgenie.com"
	}

	var url string
	var payload map[string]any
	if flip.NewStatus == models.StatusDown {
		url = base + "/v2/alerts"
		payload = map[string]any{
			"alias":       check.Code,
			"message":     mc.Subject(),
			"description": mc.Text(),
			"tags":        check.TagsList(),
		}
	} else {
		url = base + "/v2/alerts/" + check.Code + "/close?identifierType=alias"
		payload = map[string]any{}
	}

	body, _ := json.Marshal(payload)
	classify := func(status int, respBody []byte) error {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return permanentError("received status code %d", status)
		}
		return nil
	}
	return t.http.do(ctx, request{
		method:   http.MethodPost,
		url:      url,
		headers:  map[string]string{"Content-Type": "application/json", "Authorization": "GenieKey " + settings.Key},
		body:     body,
		classify: classify,
	})
}

// pagerDutyTransport sends Events API v2 trigger/resolve events keyed on
// the check code.
type pagerDutyTransport struct {
	http *httpSender
	deps Deps
}

func (t *pagerDutyTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *pagerDutyTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	payload, _ := json.Marshal(map[string]any{
		"routing_key":  channel.Value,
		"event_action": downOrUp(flip.NewStatus, "trigger", "resolve"),
		"dedup_key":    check.Code,
		"payload": map[string]any{
			"summary":  mc.Subject(),
			"source":   t.deps.Config.App.SiteURL,
			"severity": "error",
		},
	})

	classify := func(status int, body []byte) error {
		// 400 means the routing key or payload is invalid.
		if status == http.StatusBadRequest {
			return permanentError("received status code 400")
		}
		return nil
	}
	return t.http.postJSON(ctx, "https://events.pagerduty.com/v2/enqueue", payload, classify)
}

type pagerTreeTransport struct {
	http *httpSender
	deps Deps
}

func (t *pagerTreeTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *pagerTreeTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	payload, _ := json.Marshal(map[string]any{
		"event_type":  downOrUp(flip.NewStatus, "create", "resolve"),
		"id":          check.Code,
		"title":       mc.Subject(),
		"description": mc.Text(),
		"tags":        check.TagsList(),
	})
	return t.http.postJSON(ctx, channel.Value, payload, nil)
}

type victorOpsTransport struct {
	http *httpSender
	deps Deps
}

func (t *victorOpsTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *victorOpsTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	payload, _ := json.Marshal(map[string]any{
		"entity_id":           check.Code,
		"message_type":        downOrUp(flip.NewStatus, "CRITICAL", "RECOVERY"),
		"entity_display_name": mc.Subject(),
		"state_message":       mc.Text(),
		"monitoring_tool":     t.deps.Config.App.Name,
	})

	classify := func(status int, body []byte) error {
		// Splunk On-Call answers 404 for deleted REST endpoints.
		if status == http.StatusNotFound {
			return permanentError("received status code 404")
		}
		return nil
	}
	return t.http.postJSON(ctx, channel.Value, payload, classify)
}

type spikeTransport struct {
	http *httpSender
	deps Deps
}

func (t *spikeTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *spikeTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	payload, _ := json.Marshal(map[string]any{
		"status":  downOrUp(flip.NewStatus, "trigger", "resolve"),
		"id":      check.Code,
		"title":   mc.Subject(),
		"message": mc.Text(),
	})
	return t.http.postJSON(ctx, channel.Value, payload, nil)
}
