package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/dailyintel/internal/config"
)

type recordingSender struct {
	subject, body string
	err           error
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(ctx context.Context, subject, body string) error {
	r.subject, r.body = subject, body
	return r.err
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DeliveryConfig
		wantNil bool
		wantErr string
	}{
		{name: "none", cfg: config.DeliveryConfig{}, wantNil: true},
		{
			name: "email",
			cfg: config.DeliveryConfig{Method: config.DeliveryEmail, Email: config.EmailConfig{
				SMTPHost: "mail.example.com", SMTPPort: 587, FromAddr: "a@example.com", ToAddr: "b@example.com",
			}},
		},
		{
			name:    "email missing recipient",
			cfg:     config.DeliveryConfig{Method: config.DeliveryEmail, Email: config.EmailConfig{SMTPHost: "mail.example.com"}},
			wantErr: "email delivery needs",
		},
		{
			name: "telegram",
			cfg: config.DeliveryConfig{Method: config.DeliveryTelegram, Telegram: config.TelegramConfig{
				BotToken: "123:abc", ChatID: 42,
			}},
		},
		{
			name:    "telegram missing chat",
			cfg:     config.DeliveryConfig{Method: config.DeliveryTelegram, Telegram: config.TelegramConfig{BotToken: "123:abc"}},
			wantErr: "chat_id",
		},
		{name: "unknown", cfg: config.DeliveryConfig{Method: "pigeon"}, wantErr: "unknown delivery method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewFromConfig(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, n)
			} else {
				assert.NotNil(t, n)
			}
		})
	}
}

func TestSendReport(t *testing.T) {
	s := &recordingSender{}
	require.NoError(t, New(s).SendReport(context.Background(), "Daily intel", "# Report"))
	assert.Equal(t, "Daily intel", s.subject)
	assert.Equal(t, "# Report", s.body)

	s.err = errors.New("mailbox full")
	err := New(s).SendReport(context.Background(), "Daily intel", "# Report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording delivery: mailbox full")

	var none *Notifier
	assert.NoError(t, none.SendReport(context.Background(), "s", "b"))
}
