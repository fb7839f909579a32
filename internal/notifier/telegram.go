package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"BikeRebalancer/internal/model"
)

// DefaultAPI is the Telegram Bot API endpoint.
const DefaultAPI = "https://api.telegram.org"

// TelegramNotifier pushes fleet reports to one Telegram chat and answers
// commands sent from it.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client

	// Retries is how many times a failed push is repeated, waiting Backoff,
	// then twice as long, and so on.
	Retries int
	Backoff time.Duration
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  DefaultAPI,
		Client:   &http.Client{Timeout: 30 * time.Second, Transport: transport},
		Retries:  2,
		Backoff:  time.Second,
	}
}

func (t *TelegramNotifier) endpoint(method string) string {
	base := t.BaseURL
	if base == "" {
		base = DefaultAPI
	}
	return fmt.Sprintf("%s/bot%s/%s", base, t.BotToken, method)
}

// SendSummary pushes the report of one finished day.
func (t *TelegramNotifier) SendSummary(ctx context.Context, sum *model.DaySummary) error {
	if err := t.push(ctx, FormatDaySummary(sum)); err != nil {
		return fmt.Errorf("day %s summary: %w", sum.Day, err)
	}
	return nil
}

func (t *TelegramNotifier) push(ctx context.Context, text string) error {
	var lastErr error
	wait := t.Backoff
	for i := 0; i <= t.Retries; i++ {
		lastErr = t.sendMessage(ctx, text)
		if lastErr == nil {
			return nil
		}
		if i == t.Retries {
			break
		}
		log.Warn("telegram send failed", "attempt", i+1, "of", t.Retries+1, "err", lastErr, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("all %d attempts failed: %w", t.Retries+1, lastErr)
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
