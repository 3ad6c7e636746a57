package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/logger"
)

// TelegramSender delivers messages to every configured chat through the
// Telegram Bot API. Without a token or chat ids it does nothing.
type TelegramSender struct {
	baseURL string
	token   string
	chatIDs []string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewTelegramSender uses client when given, otherwise a client with a
// 10-second timeout.
func NewTelegramSender(cfg config.AlertConfig, client *http.Client) *TelegramSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.TelegramURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	mps := cfg.MessagesPerSecond
	if mps <= 0 {
		mps = 1
	}
	return &TelegramSender{
		baseURL: baseURL,
		token:   cfg.TelegramToken,
		chatIDs: cfg.ChatIDs,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(mps), 1),
		log:     logger.GetLogger(),
	}
}

// Configured reports whether a token and at least one chat id are set.
func (t *TelegramSender) Configured() bool {
	return t.token != "" && len(t.chatIDs) > 0
}

// Send posts text to every chat id. A failing chat does not stop delivery
// to the rest; all failures are returned together.
func (t *TelegramSender) Send(ctx context.Context, text string) error {
	if !t.Configured() {
		return nil
	}

	var errs []error
	for _, chatID := range t.chatIDs {
		if err := t.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		if err := t.sendOne(ctx, chatID, text); err != nil {
			t.log.WithComponent("telegram").WithError(err).WithField("chat_id", chatID).Warn("telegram delivery failed")
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (t *TelegramSender) sendOne(ctx context.Context, chatID, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The request URL carries the bot token; keep it out of logs.
		var ue *neturl.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
