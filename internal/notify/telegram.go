package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/forecastkit/internal/forecast"
	"github.com/rewired-gh/forecastkit/internal/models"
)

// Telegram sends digests through the Telegram Bot API
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram creates a new Telegram notifier
func NewTelegram(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newTelegram(bot, chatID, maxRetries, retryDelayBase)
}

func newTelegram(bot *tgbotapi.BotAPI, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Telegram{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Name implements Notifier.
func (t *Telegram) Name() string { return "telegram" }

// Send sends the digest as one MarkdownV2 message.
func (t *Telegram) Send(ctx context.Context, results []*models.ForecastResult) error {
	msg := tgbotapi.NewMessage(t.chatID, formatTelegram(entries(results)))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	return retry(ctx, t.maxRetries, t.retryDelayBase, func() error {
		_, err := t.bot.Send(msg)
		return err
	})
}

// formatTelegram formats digest entries into a Telegram message
func formatTelegram(es []entry) string {
	var b strings.Builder
	b.WriteString("📊 *Forecast Digest*\n\n")

	for i, e := range es {
		arrow := "📈"
		if !e.rising() {
			arrow = "📉"
		}
		fmt.Fprintf(&b, "%d\\. *%s* · %s\n", i+1, escapeMarkdownV2(e.Region), escapeMarkdownV2(string(e.Target)))
		fmt.Fprintf(&b, "   %s %s → %s \\(%s to %s\\)\n",
			arrow,
			escapeMarkdownV2(forecast.FormatMetric(e.First)),
			escapeMarkdownV2(forecast.FormatMetric(e.Last)),
			escapeMarkdownV2(e.Start.Format("Jan 2")),
			escapeMarkdownV2(e.End.Format("Jan 2")))
		fmt.Fprintf(&b, "   🧮 %s, MAPE %s%%\n",
			escapeMarkdownV2(forecast.TierLabel(e.Tier)),
			escapeMarkdownV2(forecast.FormatMetric(e.MAPE)))
		if e.Fallbacks > 0 {
			fmt.Fprintf(&b, "   ⚠️ %d tier%s fell through\n", e.Fallbacks, plural(e.Fallbacks))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
