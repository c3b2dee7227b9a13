package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram rejects messages over 4096 characters
const telegramMaxLen = 4000

// TelegramBot is the part of tgbotapi.BotAPI the sender uses
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotFactory creates a bot; the default one calls getMe to verify the token
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// TelegramSender posts reports to one chat as plain text
type TelegramSender struct {
	token  string
	chatID int64

	Endpoint string
	Client   *http.Client
	Factory  BotFactory
}

func NewTelegramSender(token string, chatID int64) *TelegramSender {
	return &TelegramSender{
		token:    token,
		chatID:   chatID,
		Endpoint: tgbotapi.APIEndpoint,
		Client:   http.DefaultClient,
		Factory:  defaultBotFactory,
	}
}

func (t *TelegramSender) Name() string { return "telegram" }

// Send posts the subject line followed by the body, split into as many
// messages as needed
func (t *TelegramSender) Send(ctx context.Context, subject, body string) error {
	bot, err := t.Factory(t.token, t.Endpoint, t.Client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	chunks := SplitMessage(subject+"\n\n"+body, telegramMaxLen)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := bot.Send(tgbotapi.NewMessage(t.chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// SplitMessage cuts s into pieces of at most maxLen bytes, preferring line
// breaks and never splitting a UTF-8 sequence
func SplitMessage(s string, maxLen int) []string {
	var chunks []string
	for len(s) > 0 {
		if len(s) <= maxLen {
			chunks = append(chunks, s)
			break
		}

		cut := strings.LastIndex(s[:maxLen], "\n")
		if cut <= 0 {
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
		}
		chunks = append(chunks, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	return chunks
}
