package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramChannel pushes notifications to one or more Telegram chats.
// Send-only: it never polls for updates.
type TelegramChannel struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

func NewTelegramChannel(token string, chatIDs []int64) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if len(chatIDs) == 0 {
		return nil, fmt.Errorf("telegram chat ids are empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	return &TelegramChannel{
		bot:     bot,
		chatIDs: chatIDs,
	}, nil
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	text := msg.Body
	if msg.Title != "" && msg.Title != msg.Body {
		text = msg.Title + "\n" + msg.Body
	}
	chatIDs := t.targetChats(msg.Targets)
	var firstErr error
	for _, chatID := range chatIDs {
		out := tgbotapi.NewMessage(chatID, text)
		if msg.Critical {
			out.DisableNotification = false
		}
		if _, err := t.bot.Send(out); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send telegram message to %d: %w", chatID, err)
		}
	}
	return firstErr
}

// targetChats narrows the configured chats when the message carries explicit
// targets of the form "telegram:<chat_id>".
func (t *TelegramChannel) targetChats(targets string) []int64 {
	if targets == "" {
		return t.chatIDs
	}
	var out []int64
	for _, part := range strings.Split(targets, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "telegram:") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(part, "telegram:"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return t.chatIDs
	}
	return out
}
