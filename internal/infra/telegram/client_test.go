package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	sent   []int64
	failOn int64
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if msg.ChatID == f.failOn {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	f.sent = append(f.sent, msg.ChatID)
	return tgbotapi.Message{}, nil
}

func TestSendAlert(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("every chat receives the alert", func(t *testing.T) {
		api := &fakeSender{}
		a := newAlerter(api, []int64{10, 20}, logger)
		if err := a.SendAlert(context.Background(), "low balance"); err != nil {
			t.Fatalf("SendAlert: %v", err)
		}
		if len(api.sent) != 2 {
			t.Errorf("sent to %v, want two chats", api.sent)
		}
	})

	t.Run("one failing chat does not stop the rest", func(t *testing.T) {
		api := &fakeSender{failOn: 10}
		a := newAlerter(api, []int64{10, 20}, logger)
		if err := a.SendAlert(context.Background(), "low balance"); err == nil {
			t.Fatal("SendAlert returned nil, want the failed chat reported")
		}
		if len(api.sent) != 1 || api.sent[0] != 20 {
			t.Errorf("sent to %v, want [20]", api.sent)
		}
	})
}
