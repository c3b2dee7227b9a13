package store

import (
	"encoding/json"
	"path/filepath"
	"time"
)

// LLMExchange represents a prompt/response pair for caching
type LLMExchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"` // e.g. "anthropic"
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
	Duration  string    `json:"duration,omitempty"`
}

// LLMCacheDir returns the path to the LLM cache directory
func (c *Cache) LLMCacheDir() string {
	return filepath.Join(c.dir, "llm")
}

// SaveLLMExchange serializes an LLM exchange to JSON and writes it to a timestamped file.
// Returns the path to the saved file, or "" for a nil cache.
func (c *Cache) SaveLLMExchange(exchange LLMExchange) (string, error) {
	if c == nil {
		return "", nil
	}

	data, err := json.MarshalIndent(exchange, "", "  ")
	if err != nil {
		return "", err
	}
	return c.write(c.LLMCacheDir(), ".json", data)
}
