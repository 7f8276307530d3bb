package transports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pulsekeep/internal/config"
	"pulsekeep/internal/models"
	"pulsekeep/internal/storage"
)

// Transport delivers one notification over a specific channel kind.
type Transport interface {
	// Notify delivers a notification about the flip. A nil return means
	// delivered; a *TransportError with Permanent set means retrying with
	// the same channel configuration cannot succeed.
	Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error

	// IsNoop reports whether the channel is configured to skip
	// notifications for the given status.
	IsNoop(channel *models.Channel, status models.CheckStatus) bool
}

// TransportError describes a delivery failure. Permanent failures are not
// retried and count toward automatic channel disabling.
type TransportError struct {
	Message   string
	Permanent bool
}

func (e *TransportError) Error() string { return e.Message }

func (e *TransportError) IsPermanent() bool { return e.Permanent }

// IsPermanent reports whether the delivery error is not worth retrying.
func IsPermanent(err error) bool {
	var pe interface{ IsPermanent() bool }
	return errors.As(err, &pe) && pe.IsPermanent()
}

func permanentError(format string, args ...any) *TransportError {
	return &TransportError{Message: fmt.Sprintf(format, args...), Permanent: true}
}

func temporaryError(format string, args ...any) *TransportError {
	return &TransportError{Message: fmt.Sprintf(format, args...)}
}

// RateLimiter gates the transports that talk to APIs with per-recipient
// quotas.
type RateLimiter interface {
	Authorize(ctx context.Context, purpose, value string) (bool, error)
}

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, purpose, value string) (bool, error) {
	return true, nil
}

// Deps carries the shared collaborators every transport may need.
type Deps struct {
	Config   *config.Config
	Channels storage.ChannelStore
	Limiter  RateLimiter
	Logger   *slog.Logger

	// Client overrides the default HTTP client, used by tests.
	Client *http.Client
}

func (d *Deps) httpClient() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (d *Deps) limiter() RateLimiter {
	if d.Limiter != nil {
		return d.Limiter
	}
	return allowAll{}
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Registry maps channel kinds to their transports. The set of kinds is
// closed; unknown kinds fail dispatch with a permanent error.
type Registry struct {
	transports map[models.ChannelKind]Transport
}

func NewRegistry(deps Deps) *Registry {
	r := &Registry{transports: make(map[models.ChannelKind]Transport)}

	h := newHTTPSender(deps)

	r.transports[models.KindEmail] = newEmailTransport(deps)
	r.transports[models.KindWebhook] = &webhookTransport{http: h}
	r.transports[models.KindSlack] = &slackalikeTransport{http: h, kind: models.KindSlack, deps: deps}
	r.transports[models.KindMattermost] = &slackalikeTransport{http: h, kind: models.KindMattermost, deps: deps}
	r.transports[models.KindDiscord] = &discordTransport{http: h, deps: deps}
	r.transports[models.KindRocketChat] = &rocketChatTransport{http: h, deps: deps}
	r.transports[models.KindOpsgenie] = &opsgenieTransport{http: h, deps: deps}
	r.transports[models.KindPagerDuty] = &pagerDutyTransport{http: h, deps: deps}
	r.transports[models.KindPagerTree] = &pagerTreeTransport{http: h, deps: deps}
	r.transports[models.KindVictorOps] = &victorOpsTransport{http: h, deps: deps}
	r.transports[models.KindPushover] = newPushoverTransport(h, deps)
	r.transports[models.KindPushbullet] = &pushbulletTransport{http: h, deps: deps}
	r.transports[models.KindTelegram] = newTelegramTransport(deps)
	r.transports[models.KindSignal] = newSignalTransport(deps)
	r.transports[models.KindSms] = &twilioTransport{http: h, deps: deps, kind: models.KindSms}
	r.transports[models.KindWhatsApp] = &twilioTransport{http: h, deps: deps, kind: models.KindWhatsApp}
	r.transports[models.KindCall] = &twilioTransport{http: h, deps: deps, kind: models.KindCall}
	r.transports[models.KindMatrix] = &matrixTransport{http: h, deps: deps}
	r.transports[models.KindMsTeams] = &msTeamsTransport{http: h, deps: deps}
	r.transports[models.KindNtfy] = &ntfyTransport{http: h, deps: deps}
	r.transports[models.KindGotify] = &gotifyTransport{http: h, deps: deps}
	r.transports[models.KindTrello] = &trelloTransport{http: h, deps: deps}
	r.transports[models.KindZulip] = &zulipTransport{http: h, deps: deps}
	r.transports[models.KindSpike] = &spikeTransport{http: h, deps: deps}
	r.transports[models.KindGroup] = &groupTransport{registry: r, deps: deps}

	return r
}

func (r *Registry) For(kind models.ChannelKind) (Transport, error) {
	t, ok := r.transports[kind]
	if !ok {
		return nil, permanentError("no transport for channel kind %q", kind)
	}
	return t, nil
}
