package transports

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"pulsekeep/internal/models"
)

const pushoverAPI = "https://api.pushover.net/1/messages.json"

// Priority -3 on a direction means notifications for that direction are
// turned off.
const pushoverDisabled = "-3"

type pushoverTransport struct {
	http *httpSender
	deps Deps
}

func newPushoverTransport(h *httpSender, deps Deps) *pushoverTransport {
	return &pushoverTransport{http: h, deps: deps}
}

func (t *pushoverTransport) priority(channel *models.Channel, status models.CheckStatus) string {
	_, downPrio, upPrio := channel.PushoverParts()
	p := downOrUp(status, downPrio, upPrio)
	if p == "" {
		p = "0"
	}
	return p
}

func (t *pushoverTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return t.priority(channel, status) == pushoverDisabled
}

func (t *pushoverTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	cfg := t.deps.Config.Transports.Pushover
	if !cfg.Enabled() {
		return permanentError("pushover delivery is not configured")
	}

	userKey, _, _ := channel.PushoverParts()

	ok, err := t.deps.limiter().Authorize(ctx, "po", userKey)
	if err != nil {
		return temporaryError("rate limit check failed: %s", err)
	}
	if !ok {
		return temporaryError("rate limit exceeded for this recipient")
	}

	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)
	priority := t.priority(channel, flip.NewStatus)

	form := url.Values{}
	form.Set("token", cfg.APIToken)
	form.Set("user", userKey)
	form.Set("title", mc.Subject())
	form.Set("message", mc.Text())
	form.Set("url", mc.CheckURL)
	form.Set("priority", priority)
	if n, err := strconv.Atoi(priority); err == nil && n == 2 {
		// Emergency priority requires retry and expire parameters.
		form.Set("retry", "300")
		form.Set("expire", "86400")
	}

	classify := func(status int, body []byte) error {
		if status == http.StatusBadRequest && bytes.Contains(body, []byte("invalid")) {
			return permanentError("pushover rejected the user key")
		}
		return nil
	}
	return t.http.postForm(ctx, pushoverAPI, form, classify)
}

type pushbulletTransport struct {
	http *httpSender
	deps Deps
}

func (t *pushbulletTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

func (t *pushbulletTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	payload := []byte(`{"type":"note","title":` + strconv.Quote(mc.Subject()) +
		`,"body":` + strconv.Quote(mc.Text()) + `}`)

	classify := func(status int, body []byte) error {
		// 401 means the access token was revoked.
		if status == http.StatusUnauthorized {
			return permanentError("received status code 401")
		}
		return nil
	}
	return t.http.do(ctx, request{
		method: http.MethodPost,
		url:    "https://api.pushbullet.com/v2/pushes",
		headers: map[string]string{
			"Content-Type": "application/json",
			"Access-Token": channel.Value,
		},
		body:     payload,
		classify: classify,
	})
}
