package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ibeckermayer/dailyintel/internal/config"
)

// GeminiOpenAIBaseURL is Google's OpenAI-compatible endpoint for Gemini
const GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

type OpenAIOptions struct {
	// Provider labels the backend in errors and reports; defaults to "openai"
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type openaiChatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI generates text through any OpenAI-compatible chat completions API,
// which covers OpenAI itself, Gemini and Ollama's /v1 endpoint.
type OpenAI struct {
	completions openaiChatCompletions
	provider    string
	model       string
	maxTokens   int64
}

// NewOpenAI creates an OpenAI-compatible model with SDK retries disabled
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient(opts.Timeout)),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)

	return newOpenAI(&client.Chat.Completions, opts), nil
}

func newOpenAI(completions openaiChatCompletions, opts OpenAIOptions) *OpenAI {
	provider := opts.Provider
	if provider == "" {
		provider = config.ProviderOpenAI
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &OpenAI{
		completions: completions,
		provider:    provider,
		model:       opts.Model,
		maxTokens:   int64(maxTokens),
	}
}

func (o *OpenAI) Provider() string { return o.provider }
func (o *OpenAI) Name() string     { return o.model }

// Generate sends prompt as a single user message
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	completion, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(o.model),
		MaxCompletionTokens: openai.Int(o.maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classify(o.provider, apiErr.StatusCode, err)
		}
		return "", classify(o.provider, 0, err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", &FatalError{Provider: o.provider, Err: errors.New("empty response")}
	}
	return completion.Choices[0].Message.Content, nil
}
