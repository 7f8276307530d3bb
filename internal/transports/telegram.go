package transports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"pulsekeep/internal/models"
	"pulsekeep/internal/storage"
)

const telegramAPI = "https://api.telegram.org"

type telegramTransport struct {
	http     *httpSender
	deps     Deps
	channels storage.ChannelStore
}

func newTelegramTransport(deps Deps) *telegramTransport {
	client := deps.httpClient()
	if p := deps.Config.Transports.Telegram.Proxy; p != "" && deps.Client == nil {
		if dialer := socksDialer(p); dialer != nil {
			transport := &http.Transport{DialContext: dialer.DialContext}
			client = &http.Client{Timeout: 10 * time.Second, Transport: transport}
		}
	}
	return &telegramTransport{
		http:     &httpSender{client: client},
		deps:     deps,
		channels: deps.Channels,
	}
}

func socksDialer(proxyURL string) proxy.ContextDialer {
	u, err := url.Parse(proxyURL)
	if err != nil || u.Scheme != "socks5" {
		return nil
	}
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}
	d, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil
	}
	return cd
}

func (t *telegramTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return false
}

type telegramResponse struct {
	Description string `json:"description"`
	Parameters  struct {
		MigrateToChatID *int64 `json:"migrate_to_chat_id"`
	} `json:"parameters"`
}

// migrationError signals that the group chat was upgraded to a supergroup
// and messages must go to a new chat id. It is permanent so the generic
// retry loop hands it straight back for the chat-id fixup.
type migrationError struct {
	TransportError
	newChatID int64
}

func newMigrationError(chatID int64) *migrationError {
	return &migrationError{
		TransportError: TransportError{Message: "chat migrated to a new id", Permanent: true},
		newChatID:      chatID,
	}
}

func classifyTelegram(status int, body []byte) error {
	var resp telegramResponse
	json.Unmarshal(body, &resp)

	if status == http.StatusBadRequest && resp.Parameters.MigrateToChatID != nil {
		return newMigrationError(*resp.Parameters.MigrateToChatID)
	}
	// 403 means the bot was blocked or kicked from the chat.
	if status == http.StatusForbidden || status == http.StatusNotFound {
		return permanentError("received status code %d", status)
	}
	if status == http.StatusBadRequest {
		return permanentError("telegram rejected the message: %s", resp.Description)
	}
	return nil
}

func (t *telegramTransport) sendMessage(ctx context.Context, settings models.TelegramSettings, text string) error {
	cfg := t.deps.Config.Transports.Telegram

	payload := map[string]any{
		"chat_id": settings.ChatID,
		"text":    text,
	}
	if settings.ThreadID != nil {
		payload["message_thread_id"] = *settings.ThreadID
	}
	body, _ := json.Marshal(payload)

	return t.http.postJSON(ctx, telegramAPI+"/bot"+cfg.BotToken+"/sendMessage", body, classifyTelegram)
}

func (t *telegramTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	if !t.deps.Config.Transports.Telegram.Enabled() {
		return permanentError("telegram delivery is not configured")
	}

	settings := channel.Telegram()

	ok, err := t.deps.limiter().Authorize(ctx, "telegram", strconv.FormatInt(settings.ChatID, 10))
	if err != nil {
		return temporaryError("rate limit check failed: %s", err)
	}
	if !ok {
		return temporaryError("rate limit exceeded for this chat")
	}

	mc := newMessageContext(flip, check, t.deps.Config.App.SiteURL)
	text := mc.Subject() + "\n" + mc.Text()

	err = t.sendMessage(ctx, settings, text)

	var migration *migrationError
	if errors.As(err, &migration) {
		// The chat moved to a supergroup. Store the new id and retry once.
		settings.ChatID = migration.newChatID
		if t.channels != nil {
			if value, merr := json.Marshal(settings); merr == nil {
				t.channels.UpdateValue(ctx, channel.Code, string(value))
			}
		}
		err = t.sendMessage(ctx, settings, text)
	}
	return err
}
