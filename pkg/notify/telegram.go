package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	BotToken  string `yaml:"bot_token" json:"-" env:"TELEGRAM_BOT_TOKEN"`
	ChannelID string `yaml:"channel_id" json:"channel_id" env:"TELEGRAM_CHANNEL_ID"`
	APIURL    string `yaml:"api_url" json:"api_url"` // default https://api.telegram.org
}

// TelegramNotifier posts messages to a channel through the Bot API.
type TelegramNotifier struct {
	config TelegramConfig
	http   *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &TelegramNotifier{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Channel() Channel { return ChannelTelegram }

// Send sends a message via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"chat_id":    t.config.ChannelID,
		"text":       telegramText(msg),
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.config.APIURL, t.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// telegramText renders msg in Telegram's HTML subset.
func telegramText(msg Message) string {
	var sb strings.Builder
	if msg.Breaking {
		sb.WriteString("🔴 <b>URGENTE</b>\n")
	}
	if msg.Title != "" {
		fmt.Fprintf(&sb, "<b>%s</b>\n", html.EscapeString(msg.Title))
	}
	if msg.Category != "" {
		fmt.Fprintf(&sb, "<i>%s</i>\n", html.EscapeString(msg.Category))
	}
	if msg.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(html.EscapeString(msg.Body))
		sb.WriteString("\n")
	}
	if msg.URL != "" {
		fmt.Fprintf(&sb, "\n🔗 <a href=\"%s\">Leia a matéria completa</a>", html.EscapeString(msg.URL))
	}
	return strings.TrimRight(sb.String(), "\n")
}
