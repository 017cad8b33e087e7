package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/telebot.v3"
)

// TelegramSink delivers messages to a chat via a bot token, addressed
// as tg://<token>@<chatID> (spec.md §9 notification sink enrichment).
type TelegramSink struct {
	bot    *telebot.Bot
	chatID int64
}

// NewTelegramSink parses a tg:// URL of the form tg://<token>@<chatID>
// and builds a ready-to-use sink.
func NewTelegramSink(rawURL string) (*TelegramSink, error) {
	trimmed := strings.TrimPrefix(rawURL, "tg://")
	parts := strings.SplitN(trimmed, "@", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("telegram sink url must be tg://<token>@<chatID>, got %q", rawURL)
	}
	token, chatIDStr := parts[0], parts[1]
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram sink chat id %q: %w", chatIDStr, err)
	}

	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: nil,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

// Send delivers one message to the configured chat.
func (t *TelegramSink) Send(ctx context.Context, title, avatarURL string, msg Message) error {
	text := msg.Body
	if title != "" {
		text = fmt.Sprintf("*%s*\n%s", title, msg.Body)
	}
	recipient := &telebot.Chat{ID: t.chatID}

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(recipient, text, telebot.ModeMarkdown)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("send telegram message: timed out")
	}
}
