package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers alerts via the Telegram Bot API. Opportunity
// alerts are rendered as a Markdown block with the buy/sell legs, net
// profit, and required capital; other kinds fall back to title plus body.
type TelegramSender struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert to the configured Telegram chat using sendMessage.
func (t *TelegramSender) Send(ctx context.Context, a Alert) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       t.render(a),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// render builds the Markdown message for one alert.
func (t *TelegramSender) render(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", a.Title)

	if o := a.Opportunity; o != nil {
		fmt.Fprintf(&b, "Buy *%s* @ %.3f on %s\n", o.Outcome, o.BuyPrice, o.BuyPlatform)
		fmt.Fprintf(&b, "Sell *%s* @ %.3f on %s\n", o.Outcome, o.SellPrice, o.SellPlatform)
		fmt.Fprintf(&b, "Net: %.4f/contract (%.1f%%)\n", o.NetProfit, o.ProfitPct*100)
		fmt.Fprintf(&b, "Size: %.0f contracts, capital %.2f, total %.2f\n",
			o.PositionSize, o.RequiredCapital, o.TotalProfit)
		fmt.Fprintf(&b, "Pair: `%s` (confidence %.2f)", o.PairKey, o.Confidence)
		return b.String()
	}

	b.WriteString(a.Body)
	return b.String()
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
