package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ibeckermayer/dailyintel/internal/config"
)

// DefaultOllamaURL is where a local Ollama server listens by default
const DefaultOllamaURL = "http://localhost:11434"

type OllamaOptions struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Ollama generates text with a local model through Ollama's native
// /api/generate endpoint
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a local model client. BaseURL may be the server root or
// the full /api/generate URL.
func NewOllama(opts OllamaOptions) *Ollama {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/api/generate")
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &Ollama{
		baseURL: baseURL,
		model:   opts.Model,
		client:  httpClient(opts.Timeout),
	}
}

func (o *Ollama) Provider() string { return config.ProviderOllama }
func (o *Ollama) Name() string     { return o.model }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate runs prompt through the local model without streaming
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", classify(o.Provider(), 0, fmt.Errorf("failed to call Ollama: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(o.Provider(), 0, fmt.Errorf("failed to read response: %w", err))
	}

	var out ollamaResponse
	jsonErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if jsonErr == nil && out.Error != "" {
			msg = out.Error
		}
		return "", classify(o.Provider(), resp.StatusCode, fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, msg))
	}
	if jsonErr != nil {
		return "", &FatalError{Provider: o.Provider(), Err: fmt.Errorf("failed to parse Ollama response: %w", jsonErr)}
	}
	if out.Error != "" {
		return "", &FatalError{Provider: o.Provider(), Err: fmt.Errorf("Ollama error: %s", out.Error)}
	}
	return out.Response, nil
}

// Ping checks the server is up and the model is pulled
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable at %s: %w", o.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama at %s returned status %d", o.baseURL, resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to parse ollama model list: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == o.model || strings.TrimSuffix(m.Name, ":latest") == o.model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not available in ollama (try: ollama pull %s)", o.model, o.model)
}
