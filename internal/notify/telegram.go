package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the part of *tgbotapi.BotAPI the sender needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramSender struct {
	api BotAPI
}

func NewTelegramSender(api BotAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

// Send addresses numeric chat ids directly and anything else as an @username.
func (s *TelegramSender) Send(_ context.Context, to Recipient, msg Message) error {
	text := msg.Text
	if msg.Subject != "" && text == "" {
		text = msg.Subject
	}

	var cfg tgbotapi.MessageConfig
	chatID, err := strconv.ParseInt(to.Address, 10, 64)
	if err == nil {
		cfg = tgbotapi.NewMessage(chatID, text)
	} else {
		handle := strings.TrimPrefix(strings.TrimSpace(to.Address), "@")
		if handle == "" {
			return fmt.Errorf("empty telegram address: %w", ErrPermanent)
		}
		cfg = tgbotapi.NewMessageToChannel("@"+handle, text)
	}

	if len(msg.Actions) > 0 {
		cfg.ReplyMarkup = Keyboard(msg.Actions)
	}

	if _, err := s.api.Send(cfg); err != nil {
		return classify(err)
	}

	if chatID == 0 {
		return nil
	}
	for _, a := range msg.Attachments {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: a.Name, Bytes: a.Data})
		if _, err := s.api.Send(doc); err != nil {
			return classify(err)
		}
	}

	return nil
}

// Keyboard renders actions as an inline keyboard, one slice per row.
func Keyboard(rows [][]Action) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
		}
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// classify marks chats that are blocked, deleted or unknown as permanent failures.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusForbidden:
			return fmt.Errorf("telegram: %w: %w", ErrPermanent, err)
		}
	}
	return fmt.Errorf("telegram: %w", err)
}
