package transports

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"pulsekeep/internal/models"
)

// messageContext is the data available to notification templates.
type messageContext struct {
	Check    *models.Check
	Flip     *models.Flip
	Name     string
	Status   models.CheckStatus
	Verb     string
	SiteURL  string
	CheckURL string
	LastPing string
	Tags     []string
}

func newMessageContext(flip *models.Flip, check *models.Check, siteURL string) *messageContext {
	mc := &messageContext{
		Check:    check,
		Flip:     flip,
		Name:     check.NameThenCode(),
		Status:   flip.NewStatus,
		SiteURL:  siteURL,
		CheckURL: strings.TrimSuffix(siteURL, "/") + "/checks/" + check.Code,
		Tags:     check.TagsList(),
	}
	if flip.NewStatus == models.StatusDown {
		mc.Verb = "is DOWN"
	} else {
		mc.Verb = "is UP"
	}
	if check.LastPing != nil {
		mc.LastPing = check.LastPing.UTC().Format(time.RFC3339)
	} else {
		mc.LastPing = "never"
	}
	return mc
}

var (
	subjectTmpl = template.Must(template.New("subject").Parse(
		`{{ .Name }} {{ .Verb }}`))

	textTmpl = template.Must(template.New("text").Parse(
		`The check "{{ .Name }}" {{ .Verb }}.
Last ping: {{ .LastPing }}
{{- if .Tags }}
Tags: {{ range .Tags }}{{ . }} {{ end }}
{{- end }}
Details: {{ .CheckURL }}
`))
)

func (mc *messageContext) Subject() string {
	var buf bytes.Buffer
	subjectTmpl.Execute(&buf, mc)
	return buf.String()
}

func (mc *messageContext) Text() string {
	var buf bytes.Buffer
	textTmpl.Execute(&buf, mc)
	return buf.String()
}

// downOrUp maps a status to the conventional short keyword used by several
// incident APIs.
func downOrUp(status models.CheckStatus, down, up string) string {
	if status == models.StatusDown {
		return down
	}
	return up
}
