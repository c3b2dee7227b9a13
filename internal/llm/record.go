package llm

import (
	"context"
	"log"
	"time"

	"github.com/ibeckermayer/dailyintel/internal/store"
)

type recorded struct {
	Model
	cache *store.Cache
}

// WithCache returns a model that saves every prompt/response pair to cache.
// A nil cache returns m unchanged.
func WithCache(m Model, cache *store.Cache) Model {
	if cache == nil {
		return m
	}
	return &recorded{Model: m, cache: cache}
}

func (r *recorded) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := r.Model.Generate(ctx, prompt)

	exchange := store.LLMExchange{
		Timestamp: start,
		Provider:  r.Provider(),
		Model:     r.Name(),
		Prompt:    prompt,
		Response:  resp,
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		exchange.Error = err.Error()
	}
	if cachePath, cacheErr := r.cache.SaveLLMExchange(exchange); cacheErr != nil {
		log.Printf("[llm] Failed to cache LLM exchange: %v", cacheErr)
	} else {
		log.Printf("[llm] Cached LLM exchange to: %s", cachePath)
	}

	return resp, err
}

// Ping forwards to the wrapped model when it supports preflight checks
func (r *recorded) Ping(ctx context.Context) error {
	if p, ok := r.Model.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
