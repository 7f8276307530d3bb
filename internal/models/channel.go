package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ChannelKind selects the transport implementation for a channel.
type ChannelKind string

const (
	KindEmail      ChannelKind = "email"
	KindWebhook    ChannelKind = "webhook"
	KindSlack      ChannelKind = "slack"
	KindMattermost ChannelKind = "mattermost"
	KindDiscord    ChannelKind = "discord"
	KindRocketChat ChannelKind = "rocketchat"
	KindOpsgenie   ChannelKind = "opsgenie"
	KindPagerDuty  ChannelKind = "pd"
	KindPagerTree  ChannelKind = "pagertree"
	KindVictorOps  ChannelKind = "victorops"
	KindPushover   ChannelKind = "po"
	KindPushbullet ChannelKind = "pushbullet"
	KindTelegram   ChannelKind = "telegram"
	KindSignal     ChannelKind = "signal"
	KindSms        ChannelKind = "sms"
	KindWhatsApp   ChannelKind = "whatsapp"
	KindCall       ChannelKind = "call"
	KindMatrix     ChannelKind = "matrix"
	KindMsTeams    ChannelKind = "msteams"
	KindNtfy       ChannelKind = "ntfy"
	KindGotify     ChannelKind = "gotify"
	KindTrello     ChannelKind = "trello"
	KindZulip      ChannelKind = "zulip"
	KindSpike      ChannelKind = "spike"
	KindGroup      ChannelKind = "group"
)

// Channel is a configured notification destination. Value holds
// kind-specific configuration, typically JSON; the accessors below decode
// the shapes the transports need.
type Channel struct {
	Code      string      `json:"code"`
	ProjectID string      `json:"project_id"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	Value     string      `json:"-"`

	// Disabled is set after repeated permanent delivery failures; disabled
	// channels are skipped during dispatch.
	Disabled  bool      `json:"disabled"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EmailSettings is the value shape for email channels.
type EmailSettings struct {
	Value      string `json:"value"`
	NotifyUp   bool   `json:"up"`
	NotifyDown bool   `json:"down"`
}

func (c *Channel) Email() EmailSettings {
	if !strings.HasPrefix(c.Value, "{") {
		// Legacy plain-address values notify in both directions.
		return EmailSettings{Value: c.Value, NotifyUp: true, NotifyDown: true}
	}
	var s EmailSettings
	json.Unmarshal([]byte(c.Value), &s)
	return s
}

// PhoneSettings is the value shape for sms, whatsapp, call and signal
// channels.
type PhoneSettings struct {
	Value      string `json:"value"`
	NotifyUp   bool   `json:"up"`
	NotifyDown bool   `json:"down"`
}

func (c *Channel) Phone() PhoneSettings {
	if !strings.HasPrefix(c.Value, "{") {
		return PhoneSettings{Value: c.Value, NotifyUp: true, NotifyDown: true}
	}
	var s PhoneSettings
	json.Unmarshal([]byte(c.Value), &s)
	return s
}

// WebhookSpec describes one direction of a webhook channel.
type WebhookSpec struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

type webhookValue struct {
	MethodDown  string            `json:"method_down"`
	URLDown     string            `json:"url_down"`
	BodyDown    string            `json:"body_down"`
	HeadersDown map[string]string `json:"headers_down"`
	MethodUp    string            `json:"method_up"`
	URLUp       string            `json:"url_up"`
	BodyUp      string            `json:"body_up"`
	HeadersUp   map[string]string `json:"headers_up"`
}

// Webhook returns the spec for the given status direction.
func (c *Channel) Webhook(status CheckStatus) WebhookSpec {
	var v webhookValue
	json.Unmarshal([]byte(c.Value), &v)
	if status == StatusDown {
		return WebhookSpec{Method: v.MethodDown, URL: v.URLDown, Body: v.BodyDown, Headers: v.HeadersDown}
	}
	return WebhookSpec{Method: v.MethodUp, URL: v.URLUp, Body: v.BodyUp, Headers: v.HeadersUp}
}

// TelegramSettings is the value shape for telegram channels.
type TelegramSettings struct {
	ChatID   int64  `json:"id"`
	ThreadID *int64 `json:"thread_id,omitempty"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

func (c *Channel) Telegram() TelegramSettings {
	var s TelegramSettings
	json.Unmarshal([]byte(c.Value), &s)
	return s
}

// Pushover values use the legacy pipe format: "userkey|downprio[|upprio]".
func (c *Channel) PushoverParts() (userKey string, downPrio string, upPrio string) {
	parts := strings.Split(c.Value, "|")
	userKey = parts[0]
	if len(parts) > 1 {
		downPrio = parts[1]
	}
	upPrio = downPrio
	if len(parts) > 2 {
		upPrio = parts[2]
	}
	return
}

// OpsgenieSettings is the value shape for opsgenie channels.
type OpsgenieSettings struct {
	Key    string `json:"key"`
	Region string `json:"region"`
}

func (c *Channel) Opsgenie() OpsgenieSettings {
	if !strings.HasPrefix(c.Value, "{") {
		return OpsgenieSettings{Key: c.Value, Region: "us"}
	}
	var s OpsgenieSettings
	json.Unmarshal([]byte(c.Value), &s)
	if s.Region == "" {
		s.Region = "us"
	}
	return s
}

// ZulipSettings is the value shape for zulip channels.
type ZulipSettings struct {
	BotEmail string `json:"bot_email"`
	APIKey   string `json:"api_key"`
	Type     string `json:"mtype"`
	To       string `json:"to"`
	Site     string `json:"site"`
	Topic    string `json:"topic"`
}

func (c *Channel) Zulip() ZulipSettings {
	var s ZulipSettings
	json.Unmarshal([]byte(c.Value), &s)
	return s
}

// NtfySettings is the value shape for ntfy channels.
type NtfySettings struct {
	Topic      string `json:"topic"`
	URL        string `json:"url"`
	Priority   int    `json:"priority"`
	PriorityUp int    `json:"priority_up"`
	Token      string `json:"token"`
}

func (c *Channel) Ntfy() NtfySettings {
	var s NtfySettings
	json.Unmarshal([]byte(c.Value), &s)
	return s
}

// GotifySettings is the value shape for gotify channels.
type GotifySettings struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

func (c *Channel) Gotify() GotifySettings {
	var s GotifySettings
	json.Unmarshal([]byte(c.Value), &s)
	return s
}

// TrelloSettings is the value shape for trello channels.
type TrelloSettings struct {
	Token     string `json:"token"`
	ListID    string `json:"list_id"`
	BoardName string `json:"board_name"`
	ListName  string `json:"list_name"`
}

func (c *Channel) Trello() TrelloSettings {
	var s TrelloSettings
	json.Unmarshal([]byte(c.Value), &s)
	return s
}

// GroupMembers returns the member channel codes of a group channel.
func (c *Channel) GroupMembers() []string {
	var out []string
	for _, code := range strings.Split(c.Value, ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			out = append(out, code)
		}
	}
	return out
}
