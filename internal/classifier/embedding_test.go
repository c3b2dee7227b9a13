package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/dailyintel/internal/llm"
	"github.com/ibeckermayer/dailyintel/internal/retry"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// keywordEmbedder maps text onto three axes: conflict, money and chips
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	for k, err := range e.fail {
		if strings.Contains(text, k) {
			return nil, err
		}
	}
	vec := make([]float32, 3)
	for i, words := range [][]string{{"troops", "NATO", "ceasefire"}, {"market", "inflation", "GDP"}, {"GPU", "chip", "model"}} {
		for _, w := range words {
			vec[i] += float32(strings.Count(text, w))
		}
	}
	return vec, nil
}

func axisClassifier(t *testing.T, e llm.Embedder) *EmbeddingClassifier {
	t.Helper()
	tax, err := NewTaxonomy([]string{"Conflict", "Money", "Chips"})
	require.NoError(t, err)
	return &EmbeddingClassifier{
		Embedder:     e,
		Taxonomy:     tax,
		Policy:       retry.Policy{MaxAttempts: 3, Sleep: noSleep},
		Descriptions: map[string]string{"Conflict": "troops and NATO", "Money": "market and GDP", "Chips": "GPU and chip"},
	}
}

func TestEmbeddingClassify(t *testing.T) {
	texts := []string{
		"NATO ceasefire talks resume",
		"inflation cools as market rallies",
		"new GPU makes the model faster",
		"",
		"troops lift the market, troops on alert",
		"the GPU market and the troops",
	}
	posts := scored(len(texts), func(i int) string { return texts[i] })

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			e := &keywordEmbedder{}
			c := axisClassifier(t, e)
			c.Concurrency = concurrency

			got, errs := c.Classify(context.Background(), posts)
			require.Len(t, got, len(posts))
			for i, p := range got {
				assert.Equal(t, posts[i].ID, p.ID, "order preserved")
				assert.True(t, c.Taxonomy.Contains(p.Category))
			}

			assert.Equal(t, "Conflict", got[0].Category)
			assert.Equal(t, "Money", got[1].Category)
			assert.Equal(t, "Chips", got[2].Category)
			assert.Equal(t, Fallback, got[3].Category)
			assert.Equal(t, "Conflict", got[4].Category)
			// Equal on every axis: the earliest label wins
			assert.Equal(t, "Conflict", got[5].Category)

			require.Len(t, errs, 1)
			assert.Equal(t, 3, errs[0].Start)
			assert.Equal(t, 1, errs[0].Size)

			// three anchors plus five non-empty posts
			assert.Equal(t, 8, e.calls)
		})
	}
}

func TestEmbeddingClassifyFailedPostFallsBack(t *testing.T) {
	e := &keywordEmbedder{fail: map[string]error{
		"poison": &llm.FatalError{Provider: "ollama", StatusCode: 400, Err: errors.New("bad input")},
	}}
	c := axisClassifier(t, e)

	posts := scored(3, func(i int) string { return []string{"market news", "poison pill", "GPU news"}[i] })
	got, errs := c.Classify(context.Background(), posts)
	require.Len(t, got, 3)
	assert.Equal(t, "Money", got[0].Category)
	assert.Equal(t, Fallback, got[1].Category)
	assert.Equal(t, "Chips", got[2].Category)
	assert.Equal(t, 6, e.calls, "fatal errors are not retried")

	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Start)
	var fe *llm.FatalError
	assert.ErrorAs(t, errs[0], &fe)
}

func TestEmbeddingClassifySkipsFailedAnchors(t *testing.T) {
	e := &keywordEmbedder{fail: map[string]error{"troops": errors.New("anchor down")}}
	c := axisClassifier(t, e)

	got, errs := c.Classify(context.Background(), scored(1, func(int) string { return "ceasefire and GDP" }))
	assert.Empty(t, errs)
	assert.Equal(t, "Money", got[0].Category)
}

func TestEmbeddingClassifyNoAnchors(t *testing.T) {
	e := &keywordEmbedder{fail: map[string]error{"": errors.New("connection refused")}}
	c := &EmbeddingClassifier{Embedder: e, Taxonomy: DefaultTaxonomy()}

	got, errs := c.Classify(context.Background(), scored(4, func(int) string { return "market" }))
	require.Len(t, got, 4)
	for _, p := range got {
		assert.Equal(t, Fallback, p.Category)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNoAnchors)
	assert.Equal(t, 4, errs[0].Size)
	assert.Equal(t, 6, e.calls, "posts are not embedded without anchors")
}

func TestEmbeddingClassifyRetriesTransientErrors(t *testing.T) {
	var mu sync.Mutex
	failures := 2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		mu.Lock()
		defer mu.Unlock()
		if strings.Contains(req.Prompt, "vaccine") && failures > 0 {
			failures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		vec := []float32{0.1, 0.1}
		if strings.Contains(req.Prompt, "vaccine") || strings.HasPrefix(req.Prompt, "Medicine") {
			vec = []float32{0, 1}
		}
		json.NewEncoder(w).Encode(map[string][]float32{"embedding": vec})
	}))
	defer srv.Close()

	c := &EmbeddingClassifier{
		Embedder: llm.NewOllamaEmbedder(llm.OllamaEmbedderOptions{BaseURL: srv.URL, Model: "nomic-embed-text"}),
		Taxonomy: DefaultTaxonomy(),
		Policy:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: noSleep},
	}

	got, errs := c.Classify(context.Background(), scored(1, func(int) string { return "vaccine trial results" }))
	assert.Empty(t, errs)
	require.Len(t, got, 1)
	assert.Equal(t, "Health & Science", got[0].Category)
	assert.Zero(t, failures)
}

func TestEmbeddingClassifyEmpty(t *testing.T) {
	e := &keywordEmbedder{}
	c := &EmbeddingClassifier{Embedder: e, Taxonomy: DefaultTaxonomy()}
	got, errs := c.Classify(context.Background(), []types.ScoredPost{})
	assert.Empty(t, got)
	assert.Empty(t, errs)
	assert.Zero(t, e.calls)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 1}, []float32{-1, -1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosineSimilarity(nil, []float32{1}))
}

func TestDefaultDescriptionsCoverDefaultTaxonomy(t *testing.T) {
	for _, l := range DefaultTaxonomy().Labels() {
		assert.NotEmpty(t, DefaultDescriptions[l], l)
	}
}
