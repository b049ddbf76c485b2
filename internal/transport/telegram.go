package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"dealwatch/internal/broadcast"
)

// Telegram delivers broadcast messages through the Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	logger zerolog.Logger
}

// NewTelegram authenticates against the Bot API with the given token.
func NewTelegram(token string, logger zerolog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authenticate telegram bot: %w", err)
	}
	l := logger.With().Str("component", "telegram").Logger()
	l.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorised")
	return &Telegram{bot: bot, logger: l}, nil
}

var _ broadcast.Transport = (*Telegram)(nil)

// Send delivers one deal message. Messages with an image go out as a photo
// with a caption, everything else as plain text. Both carry an inline
// buy-now button when a link is present.
func (t *Telegram) Send(ctx context.Context, chatID int64, msg broadcast.Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var keyboard *tgbotapi.InlineKeyboardMarkup
	if msg.LinkURL != "" {
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🛒 Buy now", msg.LinkURL),
			),
		)
		keyboard = &kb
	}

	var sent tgbotapi.Message
	var err error
	if msg.ImageURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(msg.ImageURL))
		photo.Caption = msg.Text
		photo.ParseMode = tgbotapi.ModeMarkdown
		if keyboard != nil {
			photo.ReplyMarkup = keyboard
		}
		sent, err = t.bot.Send(photo)
	} else {
		text := tgbotapi.NewMessage(chatID, msg.Text)
		text.ParseMode = tgbotapi.ModeMarkdown
		text.DisableWebPagePreview = false
		if keyboard != nil {
			text.ReplyMarkup = keyboard
		}
		sent, err = t.bot.Send(text)
	}
	if err != nil {
		return 0, translateError(err)
	}
	return sent.MessageID, nil
}

// SendText delivers a plain status or report message without media.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return translateError(err)
	}
	return nil
}

// translateError maps Bot API rate limit responses onto the broadcast
// package's throttle error so the caller can back off.
func translateError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &broadcast.ThrottledError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	return err
}
