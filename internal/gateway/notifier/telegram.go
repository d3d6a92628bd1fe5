package notifier

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

	"github.com/cenkalti/backoff/v5"
)

const (
	telegramTries   = 3
	telegramTimeout = 15 * time.Second
)

var errTelegramConfig = errors.New("telegram: bot token and chat id are required")

// Telegram posts operator alerts to a chat through the Bot API.
type Telegram struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client

	newBackOff func() backoff.BackOff
}

func NewTelegram(apiBase, botToken, chatID string) *Telegram {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://api.telegram.org"
	}
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  strings.TrimRight(apiBase, "/"),
		Client:   &http.Client{Timeout: telegramTimeout},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			return b
		},
	}
}

// SendText delivers text with up to three attempts. Client errors other than
// 429 are not retried.
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return errTelegramConfig
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, t.BotToken)
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, t.post(ctx, url, body)
	}, backoff.WithBackOff(t.newBackOff()), backoff.WithMaxTries(telegramTries))
	return err
}

func (t *Telegram) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("telegram status=%d", resp.StatusCode))
	default:
		return fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
}
