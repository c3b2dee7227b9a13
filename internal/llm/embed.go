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

// DefaultEmbedModel is the Ollama embedding model used when none is configured
const DefaultEmbedModel = "nomic-embed-text"

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type OllamaEmbedderOptions struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaEmbedder calls Ollama's /api/embeddings endpoint
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaEmbedder creates an embedding client. BaseURL may be the server
// root or the full /api/embeddings URL.
func NewOllamaEmbedder(opts OllamaEmbedderOptions) *OllamaEmbedder {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	baseURL = strings.TrimSuffix(baseURL, "/api/embeddings")
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultEmbedModel
	}
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  httpClient(opts.Timeout),
	}
}

// NewEmbedder creates the embedder configured for cfg
func NewEmbedder(cfg config.IntelConfig) (Embedder, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	baseURL := cfg.EmbedURL
	if baseURL == "" && cfg.Provider == config.ProviderOllama {
		baseURL = cfg.BaseURL
	}
	return NewOllamaEmbedder(OllamaEmbedderOptions{
		BaseURL: baseURL,
		Model:   cfg.EmbedModel,
		Timeout: timeout,
	}), nil
}

func (e *OllamaEmbedder) Name() string { return e.model }

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed returns the embedding of text. Errors are TransientError or
// FatalError like Generate's.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &FatalError{Provider: config.ProviderOllama, Err: fmt.Errorf("embed: empty text")}
	}

	payload, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classify(config.ProviderOllama, 0, fmt.Errorf("failed to call Ollama embeddings: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(config.ProviderOllama, 0, fmt.Errorf("failed to read response: %w", err))
	}

	var out embeddingResponse
	jsonErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if jsonErr == nil && out.Error != "" {
			msg = out.Error
		}
		return nil, classify(config.ProviderOllama, resp.StatusCode, fmt.Errorf("embedding http %d: %s", resp.StatusCode, msg))
	}
	if jsonErr != nil {
		return nil, &FatalError{Provider: config.ProviderOllama, Err: fmt.Errorf("failed to parse embedding response: %w", jsonErr)}
	}
	if len(out.Embedding) == 0 {
		return nil, &FatalError{Provider: config.ProviderOllama, Err: fmt.Errorf("empty embedding vector")}
	}
	return out.Embedding, nil
}
