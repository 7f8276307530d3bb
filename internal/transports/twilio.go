package transports

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"pulsekeep/internal/models"
)

// twilioTransport covers sms, whatsapp and voice call channels, which all
// go through the Twilio REST API.
type twilioTransport struct {
	http *httpSender
	deps Deps
	kind models.ChannelKind
}

func (t *twilioTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	s := channel.Phone()
	if status == models.StatusDown {
		return !s.NotifyDown
	}
	// Voice calls only announce down events.
	if t.kind == models.KindCall {
		return true
	}
	return !s.NotifyUp
}

// Twilio error 21211 means the recipient number is invalid.
func classifyTwilio(status int, body []byte) error {
	if status == http.StatusBadRequest && bytes.Contains(body, []byte("21211")) {
		return permanentError("invalid phone number")
	}
	if status == http.StatusUnauthorized {
		return permanentError("received status code 401")
	}
	return nil
}

func (t *twilioTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	cfg := t.deps.Config.Transports.Twilio
	if !cfg.Enabled() {
		return permanentError("twilio delivery is not configured")
	}

	to := channel.Phone().Value
	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)

	base := "https://api.twilio.com/2010-04-01/Accounts/" + cfg.AccountSID

	var endpoint string
	form := url.Values{}
	switch t.kind {
	case models.KindCall:
		endpoint = base + "/Calls.json"
		form.Set("To", to)
		form.Set("From", cfg.FromNumber)
		form.Set("Twiml", "<Response><Say>"+mc.Subject()+"</Say></Response>")
	case models.KindWhatsApp:
		endpoint = base + "/Messages.json"
		form.Set("To", "whatsapp:"+to)
		form.Set("From", "whatsapp:"+cfg.FromNumber)
		form.Set("Body", mc.Subject())
	default:
		endpoint = base + "/Messages.json"
		form.Set("To", to)
		form.Set("From", cfg.FromNumber)
		if cfg.MessagingSID != "" {
			form.Del("From")
			form.Set("MessagingServiceSid", cfg.MessagingSID)
		}
		form.Set("Body", mc.Subject())
	}

	return t.http.do(ctx, request{
		method:   http.MethodPost,
		url:      endpoint,
		headers:  map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		body:     []byte(form.Encode()),
		user:     cfg.AccountSID,
		password: cfg.AuthToken,
		classify: classifyTwilio,
	})
}
