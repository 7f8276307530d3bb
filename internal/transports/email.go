package transports

import (
	"context"

	mail "gopkg.in/mail.v2"

	"pulsekeep/internal/config"
	"pulsekeep/internal/models"
)

type emailTransport struct {
	cfg     config.EmailConfig
	siteURL string

	// send is swapped out in tests.
	send func(m *mail.Message) error
}

func newEmailTransport(deps Deps) *emailTransport {
	cfg := deps.Config.Transports.Email
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	dialer.StartTLSPolicy = mail.OpportunisticStartTLS
	if cfg.UseTLS {
		dialer.StartTLSPolicy = mail.MandatoryStartTLS
	}

	return &emailTransport{
		cfg:     cfg,
		siteURL: deps.Config.App.SiteURL,
		send:    func(m *mail.Message) error { return dialer.DialAndSend(m) },
	}
}

func (t *emailTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	s := channel.Email()
	if status == models.StatusDown {
		return !s.NotifyDown
	}
	return !s.NotifyUp
}

func (t *emailTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	if !t.cfg.Enabled() {
		return permanentError("email delivery is not configured")
	}

	mc := newMessageContext(flip, check, t.siteURL)

	m := mail.NewMessage()
	m.SetHeader("From", t.cfg.From)
	m.SetHeader("To", channel.Email().Value)
	m.SetHeader("Subject", mc.Subject())
	m.SetBody("text/plain", mc.Text())

	if err := t.send(m); err != nil {
		return temporaryError("smtp delivery failed: %s", err)
	}
	return nil
}

// SendRaw delivers an arbitrary message outside the flip flow, used for
// operational alerts like signal-cli CAPTCHA challenges.
func (t *emailTransport) SendRaw(to, subject, body string) error {
	if !t.cfg.Enabled() {
		return permanentError("email delivery is not configured")
	}
	m := mail.NewMessage()
	m.SetHeader("From", t.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := t.send(m); err != nil {
		return temporaryError("smtp delivery failed: %s", err)
	}
	return nil
}
