package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/upmon/upmon/internal/monitor"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender posts alerts to the Telegram Bot API. One instance serves
// both the env-configured builtin chat and database channels; channel config
// keys chat_id and parse_mode override the defaults per delivery.
//
// A circuit breaker shields the dispatcher when the Bot API misbehaves:
// while open, sends fail fast and the outbox rows stay queued for a later
// sweep.
type TelegramSender struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	baseURL    string
	token      string
	chatID     string
	parseMode  string
}

func NewTelegramSender(token, chatID, parseMode string) *TelegramSender {
	return &TelegramSender{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "telegram",
			Timeout: 30 * time.Second,
		}),
		baseURL:   telegramAPIBase,
		token:     token,
		chatID:    chatID,
		parseMode: parseMode,
	}
}

func (t *TelegramSender) Type() monitor.ChannelType { return monitor.ChannelTelegram }

func (t *TelegramSender) Send(ctx context.Context, event monitor.AlertEvent, cfg map[string]string) error {
	chatID := t.chatID
	if v := cfg["chat_id"]; v != "" {
		chatID = v
	}
	parseMode := t.parseMode
	if v := cfg["parse_mode"]; v != "" {
		parseMode = v
	}
	if t.token == "" || chatID == "" {
		return errors.New("telegram sender not configured: missing token or chat id")
	}

	payload := sendMessageRequest{
		ChatID:                chatID,
		Text:                  FormatMessage(event),
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}
	_, err := t.breaker.Execute(func() (any, error) {
		return nil, t.post(ctx, payload)
	})
	return err
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (t *TelegramSender) post(ctx context.Context, payload sendMessageRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram api status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
