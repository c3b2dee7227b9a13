// Package notifier delivers finished reports by e-mail or Telegram.
package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/ibeckermayer/dailyintel/internal/config"
	"github.com/ibeckermayer/dailyintel/internal/notifier/providers"
)

// Sender delivers one report
type Sender interface {
	Send(ctx context.Context, subject, body string) error
	Name() string
}

// Notifier sends reports through a Sender
type Notifier struct {
	sender Sender
}

func New(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// NewFromConfig builds the notifier for cfg.Method. The "none" method
// returns a nil notifier, which is safe to call.
func NewFromConfig(cfg config.DeliveryConfig) (*Notifier, error) {
	var sender Sender

	switch cfg.Method {
	case config.DeliveryNone:
		return nil, nil
	case config.DeliveryEmail:
		e := cfg.Email
		if e.SMTPHost == "" || e.FromAddr == "" || e.ToAddr == "" {
			return nil, fmt.Errorf("email delivery needs smtp_host, from_address and to_address")
		}
		sender = providers.NewSMTPSender(e.SMTPHost, e.SMTPPort, e.SMTPUser, e.SMTPPass, e.FromAddr, e.ToAddr)
	case config.DeliveryTelegram:
		tg := cfg.Telegram
		if tg.BotToken == "" || tg.ChatID == 0 {
			return nil, fmt.Errorf("telegram delivery needs bot_token and chat_id")
		}
		sender = providers.NewTelegramSender(tg.BotToken, tg.ChatID)
	default:
		return nil, fmt.Errorf("unknown delivery method: %s", cfg.Method)
	}

	return New(sender), nil
}

// SendReport delivers a report's markdown
func (n *Notifier) SendReport(ctx context.Context, subject, markdown string) error {
	if n == nil {
		return nil
	}
	log.Printf("[deliver] Sending %q via %s", subject, n.sender.Name())
	if err := n.sender.Send(ctx, subject, markdown); err != nil {
		return fmt.Errorf("%s delivery: %w", n.sender.Name(), err)
	}
	return nil
}
