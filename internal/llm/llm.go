// Package llm adapts the supported model providers to a single text-in,
// text-out interface and sorts their failures into transient and fatal.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ibeckermayer/dailyintel/internal/config"
)

// Model generates a completion for a single prompt
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Provider is the backend name, e.g. "anthropic"
	Provider() string
	// Name is the model identifier sent to the provider
	Name() string
}

// Pinger is implemented by models that can check their backend is reachable
// before a run starts
type Pinger interface {
	Ping(ctx context.Context) error
}

// TransientError is a failure worth retrying: rate limits, overload,
// timeouts and dropped connections.
type TransientError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient error (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient error: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is a failure that will not go away on retry, such as bad
// credentials or a malformed request.
type FatalError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: request failed (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying. Use it as a
// retry.Policy Retryable predicate.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// transientStatus holds the HTTP codes that indicate rate limiting or
// temporary unavailability. 529 is Anthropic's "overloaded".
var transientStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	529:                            true,
}

// classify wraps err as transient or fatal based on the HTTP status (0 when
// the request never got a response).
func classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if status != 0 {
		if transientStatus[status] {
			return &TransientError{Provider: provider, StatusCode: status, Err: err}
		}
		return &FatalError{Provider: provider, StatusCode: status, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Provider: provider, Err: err}
	}
	return &FatalError{Provider: provider, Err: err}
}

// New creates the model for the configured provider
func New(cfg config.IntelConfig) (Model, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropic(AnthropicOptions{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   timeout,
		})
	case config.ProviderOpenAI, config.ProviderGemini:
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == config.ProviderGemini {
			baseURL = GeminiOpenAIBaseURL
		}
		return NewOpenAI(OpenAIOptions{
			Provider:  cfg.Provider,
			APIKey:    cfg.APIKey,
			BaseURL:   baseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   timeout,
		})
	case config.ProviderOllama:
		return NewOllama(OllamaOptions{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
