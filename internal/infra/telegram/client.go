package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter mirrors admin notifications into Telegram chats.
type Alerter struct {
	api     sender
	chatIDs []int64
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewAlerter(token string, chatIDs []int64, logger *slog.Logger) (*Alerter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newAlerter(bot, chatIDs, logger), nil
}

func newAlerter(api sender, chatIDs []int64, logger *slog.Logger) *Alerter {
	return &Alerter{
		api:     api,
		chatIDs: chatIDs,
		// Telegram allows about 30 messages per second per bot
		limiter: rate.NewLimiter(30, 1),
		logger:  logger,
	}
}

// SendAlert delivers text to every configured chat and reports the chats that failed.
func (a *Alerter) SendAlert(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range a.chatIDs {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiting: %w", err)
		}

		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := a.api.Send(msg); err != nil {
			a.logger.Error("Failed to send telegram alert",
				slog.Int64("chat_id", chatID),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}
