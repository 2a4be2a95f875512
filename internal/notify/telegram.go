package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/alert"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram delivers notifications through the Telegram Bot API sendMessage
// call.
type Telegram struct {
	apiBase    string
	botToken   string
	chatID     string
	httpClient *http.Client
}

// NewTelegram creates a Telegram transport. apiBase is overridable for
// tests; empty selects the production endpoint. timeout bounds each send.
func NewTelegram(apiBase, botToken, chatID string, timeout time.Duration) *Telegram {
	if apiBase == "" {
		apiBase = defaultTelegramAPI
	}
	return &Telegram{
		apiBase:  apiBase,
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send implements Transport.
func (t *Telegram) Send(ctx context.Context, n alert.Notification) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {n.Payload},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
