package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embed colors per alert kind (Discord decimal RGB).
const (
	colorGreen  = 0x2ecc71 // opportunity
	colorRed    = 0xe74c3c // cycle error
	colorOrange = 0xe67e22 // everything else
)

// DiscordSender delivers alerts via a Discord webhook. Opportunity alerts
// are rendered as a rich embed with one field per leg; other kinds become a
// simple embed with the body as description.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

// Send posts the alert to the Discord webhook as an embed. Discord returns
// 204 No Content on success.
func (d *DiscordSender) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(map[string]any{
		"embeds": []discordEmbed{d.embed(a)},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// embed builds the Discord embed for one alert.
func (d *DiscordSender) embed(a Alert) discordEmbed {
	e := discordEmbed{Title: a.Title, Color: colorOrange}

	switch a.Kind {
	case KindOpportunity:
		e.Color = colorGreen
	case KindCycleError:
		e.Color = colorRed
	}

	o := a.Opportunity
	if o == nil {
		e.Description = a.Body
		return e
	}

	e.Description = fmt.Sprintf("`%s`", o.PairKey)
	e.Fields = []discordField{
		{Name: "Buy", Value: fmt.Sprintf("%s %s @ %.3f", o.BuyPlatform, o.Outcome, o.BuyPrice), Inline: true},
		{Name: "Sell", Value: fmt.Sprintf("%s %s @ %.3f", o.SellPlatform, o.Outcome, o.SellPrice), Inline: true},
		{Name: "Net / contract", Value: fmt.Sprintf("%.4f (%.1f%%)", o.NetProfit, o.ProfitPct*100), Inline: true},
		{Name: "Position", Value: fmt.Sprintf("%.0f contracts", o.PositionSize), Inline: true},
		{Name: "Capital", Value: fmt.Sprintf("%.2f", o.RequiredCapital), Inline: true},
		{Name: "Total profit", Value: fmt.Sprintf("%.2f", o.TotalProfit), Inline: true},
	}
	return e
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
