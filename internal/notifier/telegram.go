package notifier

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of tgbotapi.BotAPI used to push messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram pushes notices to users that linked a Telegram account.
type Telegram struct {
	api Sender
	loc *time.Location
}

func NewTelegram(api Sender, loc *time.Location) *Telegram {
	if loc == nil {
		loc = time.Local
	}
	return &Telegram{api: api, loc: loc}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Accepts(n ExpirationNotice) bool {
	return n.RecipientTelegramID != nil && *n.RecipientTelegramID != 0
}

func (t *Telegram) Send(ctx context.Context, n ExpirationNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(*n.RecipientTelegramID, TelegramText(n, t.loc))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("push to %d: %w", *n.RecipientTelegramID, err)
	}
	return nil
}
