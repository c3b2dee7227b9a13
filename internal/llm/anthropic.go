package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ibeckermayer/dailyintel/internal/config"
)

type AnthropicOptions struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type anthropicMessages interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Anthropic generates text with Claude through the Messages API
type Anthropic struct {
	msgs      anthropicMessages
	model     string
	maxTokens int64
}

// NewAnthropic creates a Claude-backed model. SDK retries are disabled so
// the caller's retry policy is the only one in effect.
func NewAnthropic(opts AnthropicOptions) (*Anthropic, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("anthropic: api key required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient(opts.Timeout)),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)

	return newAnthropic(&client.Messages, opts), nil
}

func newAnthropic(msgs anthropicMessages, opts AnthropicOptions) *Anthropic {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Anthropic{msgs: msgs, model: opts.Model, maxTokens: int64(maxTokens)}
}

func (a *Anthropic) Provider() string { return config.ProviderAnthropic }
func (a *Anthropic) Name() string     { return a.model }

// Generate sends prompt as a single user message
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	message, err := a.msgs.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classify(a.Provider(), apiErr.StatusCode, err)
		}
		return "", classify(a.Provider(), 0, err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &FatalError{Provider: a.Provider(), Err: fmt.Errorf("empty response (stop reason %q)", message.StopReason)}
	}
	return sb.String(), nil
}
