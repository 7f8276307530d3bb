package transports

import (
	"context"
	"net/http"
	"strings"

	"pulsekeep/internal/models"
)

type webhookTransport struct {
	http *httpSender
}

func (t *webhookTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return channel.Webhook(status).URL == ""
}

// interpolate fills the placeholder variables webhook URLs and bodies may
// carry.
func interpolate(s string, check *models.Check, status models.CheckStatus) string {
	r := strings.NewReplacer(
		"$CODE", check.Code,
		"$NAME", check.NameThenCode(),
		"$STATUS", string(status),
		"$TAGS", check.Tags,
	)
	return r.Replace(s)
}

func (t *webhookTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	spec := channel.Webhook(flip.NewStatus)
	if spec.URL == "" {
		return nil
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if spec.Body != "" {
		body = []byte(interpolate(spec.Body, check, flip.NewStatus))
	}

	headers := make(map[string]string, len(spec.Headers))
	for k, v := range spec.Headers {
		headers[k] = interpolate(v, check, flip.NewStatus)
	}

	return t.http.do(ctx, request{
		method:  method,
		url:     interpolate(spec.URL, check, flip.NewStatus),
		headers: headers,
		body:    body,
	})
}
