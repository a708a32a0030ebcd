// Package telegram provides a client for sending forecast reports via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/mcforecast/internal/report"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
// Waiting between attempts stops early when ctx is cancelled.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a forecast failure notification.
func (c *Client) SendError(ctx context.Context, runErr error) error {
	text := fmt.Sprintf("⚠️ *Forecast failed*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendReport sends the summary of a completed forecast.
func (c *Client) SendReport(ctx context.Context, r *report.Report) error {
	return c.sendMarkdownV2(ctx, formatReport(r))
}

// formatReport formats a report into a Telegram MarkdownV2 message.
func formatReport(r *report.Report) string {
	var b strings.Builder
	b.WriteString("📊 *Price Forecast*\n\n")
	fmt.Fprintf(&b, "🆔 `%s`\n", r.RunID)
	fmt.Fprintf(&b, "🎲 %d trials over %d periods\n\n", r.Trials, r.Horizon)

	for i, e := range r.Entities {
		weight := escapeMarkdownV2(fmt.Sprintf("%.1f%%", e.Weight*100))
		fmt.Fprintf(&b, "%d\\. %s \\(%s\\)\n", i+1, escapeMarkdownV2(e.Name), weight)
	}

	s := r.Summary
	directionEmoji := "📈"
	if s.Median < 1 {
		directionEmoji = "📉"
	}
	median := escapeMarkdownV2(fmt.Sprintf("%.3f", s.Median))
	lower := escapeMarkdownV2(fmt.Sprintf("%.3f", s.Lower))
	upper := escapeMarkdownV2(fmt.Sprintf("%.3f", s.Upper))
	fmt.Fprintf(&b, "\n%s Median growth *%s*\n", directionEmoji, median)
	fmt.Fprintf(&b, "95%% interval: %s → %s\n", lower, upper)

	if p := r.Investment; p != nil {
		fmt.Fprintf(&b, "\n💰 $%s → $%s to $%s\n",
			escapeMarkdownV2(p.Initial.StringFixed(2)),
			escapeMarkdownV2(p.Lower.StringFixed(2)),
			escapeMarkdownV2(p.Upper.StringFixed(2)))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
