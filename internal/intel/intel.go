// Package intel turns a ranked digest into a thematic situation report.
package intel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ibeckermayer/dailyintel/internal/classifier"
	"github.com/ibeckermayer/dailyintel/internal/config"
	"github.com/ibeckermayer/dailyintel/internal/llm"
	"github.com/ibeckermayer/dailyintel/internal/retry"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// Input is what a strategy synthesizes from. Text is the rendered intel
// digest; Posts may be empty, in which case strategies that need structured
// posts parse them out of Text.
type Input struct {
	Text        string
	Posts       []types.ScoredPost
	GeneratedAt time.Time
}

// Strategy produces a report. Model failures are written into the report
// text; the error return is reserved for problems no report can be written
// for, such as empty or unparseable input.
type Strategy interface {
	Synthesize(ctx context.Context, in Input) (string, error)
	Name() string
}

// New builds the strategy selected by cfg.Backend
func New(cfg config.IntelConfig, model llm.Model) (Strategy, error) {
	policy, err := cfg.RetryPolicy()
	if err != nil {
		return nil, err
	}
	policy.Retryable = llm.IsTransient

	taxonomy, err := classifier.NewTaxonomy(cfg.Taxonomy)
	if err != nil {
		return nil, fmt.Errorf("intel.taxonomy: %w", err)
	}

	switch cfg.Backend {
	case config.BackendCloud:
		return &SingleShot{
			Model:    model,
			Policy:   policy,
			Taxonomy: taxonomy,
		}, nil
	case config.BackendLocal:
		labeler, err := newLabeler(cfg, model, policy, taxonomy)
		if err != nil {
			return nil, err
		}
		return &MapReduce{
			Model:            model,
			Policy:           policy,
			Classifier:       labeler,
			TopK:             cfg.TopK,
			ExecutiveSummary: cfg.ExecutiveSummary,
			Concurrency:      cfg.Concurrency,
		}, nil
	default:
		return nil, fmt.Errorf("unknown intel backend: %q", cfg.Backend)
	}
}

// newLabeler builds the post classifier selected by cfg.Classifier
func newLabeler(cfg config.IntelConfig, model llm.Model, policy retry.Policy, taxonomy classifier.Taxonomy) (classifier.Labeler, error) {
	switch cfg.Classifier {
	case "", config.ClassifierLLM:
		return &classifier.Classifier{
			Model:       model,
			Policy:      policy,
			Taxonomy:    taxonomy,
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.Concurrency,
		}, nil
	case config.ClassifierEmbedding:
		embedder, err := llm.NewEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return &classifier.EmbeddingClassifier{
			Embedder:    embedder,
			Policy:      policy,
			Taxonomy:    taxonomy,
			Concurrency: cfg.Concurrency,
		}, nil
	default:
		return nil, fmt.Errorf("unknown intel classifier: %q", cfg.Classifier)
	}
}

// Preflight checks the model's backend is reachable, for models that
// support it
func Preflight(ctx context.Context, model llm.Model) error {
	p, ok := model.(llm.Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%s backend unavailable: %w", model.Provider(), err)
	}
	return nil
}

var providerTitles = map[string]string{
	config.ProviderAnthropic: "Anthropic",
	config.ProviderOpenAI:    "OpenAI",
	config.ProviderGemini:    "Gemini",
	config.ProviderOllama:    "Ollama",
}

// Header is the canonical report title and attribution line
func Header(generatedAt time.Time, model llm.Model) string {
	agent, ok := providerTitles[model.Provider()]
	if !ok {
		agent = model.Provider()
	}
	return fmt.Sprintf("# Global Situation Report: %s\n*Agent: %s Intelligence | Model: %s*\n\n",
		generatedAt.UTC().Format("January 2, 2006"), agent, model.Name())
}

func generatedAt(in Input) time.Time {
	if in.GeneratedAt.IsZero() {
		return time.Now().UTC()
	}
	return in.GeneratedAt
}

// failureBody is the report text written when synthesis could not complete
func failureBody(err error) string {
	return fmt.Sprintf("**Synthesis failed:** %s\n\nThe ranked digest for this run is still available in the summary file.\n",
		strings.TrimSpace(err.Error()))
}
