package classifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/dailyintel/internal/llm"
	"github.com/ibeckermayer/dailyintel/internal/retry"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// Labeler assigns every post one label of its taxonomy
type Labeler interface {
	Classify(ctx context.Context, posts []types.ScoredPost) ([]types.CategorizedPost, []*BatchError)
	Categories() Taxonomy
}

var (
	_ Labeler = (*Classifier)(nil)
	_ Labeler = (*EmbeddingClassifier)(nil)
)

// Categories returns the taxonomy posts are labelled with
func (c *Classifier) Categories() Taxonomy { return c.Taxonomy }

// DefaultDescriptions are the anchor texts embedded for the default labels.
// A label without a description is embedded by its name.
var DefaultDescriptions = map[string]string{
	"Geopolitics & Security": "International relations, military conflicts, wars, diplomacy, sanctions, " +
		"NATO, UN, terrorism, espionage, border disputes, and national security.",
	"Economics & Markets": "Stock markets, financial markets, GDP, inflation, interest rates, central banks, " +
		"crypto, corporate earnings, trade tariffs, supply chains, and economic policy.",
	"AI & Technology": "Artificial intelligence, machine learning, software, hardware, startups, " +
		"big tech companies, cybersecurity, data privacy, robotics, and scientific computing.",
	"Health & Science": "Medicine, healthcare, diseases, vaccines, nutrition, fitness, biology, " +
		"climate science, space exploration, and scientific research.",
	"Sports & Performance": "Football, soccer, basketball, tennis, athletics, Olympic sports, " +
		"esports, sports results, athlete news, and high-performance competition.",
	"Society & Culture": "Social movements, politics, religion, art, music, film, pop culture, " +
		"education, gender, race, identity, media, and everyday human trends.",
}

// ErrNoAnchors means none of the taxonomy's anchor texts could be embedded
var ErrNoAnchors = errors.New("no category anchors could be embedded")

// EmbeddingClassifier labels each post with the category whose anchor text
// is closest to it by cosine similarity. It makes one embedding call per
// label and per post and never calls the generative model.
type EmbeddingClassifier struct {
	Embedder llm.Embedder
	Policy   retry.Policy
	Taxonomy Taxonomy
	// Descriptions maps labels to anchor texts; defaults to DefaultDescriptions
	Descriptions map[string]string
	// Concurrency is the number of embedding calls in flight; defaults to 1
	Concurrency int
}

func (c *EmbeddingClassifier) Categories() Taxonomy { return c.Taxonomy }

type anchor struct {
	label string
	vec   []float32
}

// Classify labels every post. The output has the same order and length as
// posts. A post that cannot be embedded, or has no text, gets Fallback and
// is reported as a one-post BatchError. If no anchor embeds at all, every
// post gets Fallback.
func (c *EmbeddingClassifier) Classify(ctx context.Context, posts []types.ScoredPost) ([]types.CategorizedPost, []*BatchError) {
	if len(posts) == 0 {
		return nil, nil
	}

	out := make([]types.CategorizedPost, len(posts))
	for i, p := range posts {
		out[i] = types.CategorizedPost{ScoredPost: p, Category: Fallback}
	}

	anchors := c.embedAnchors(ctx)
	if len(anchors) == 0 {
		err := &BatchError{Start: 0, Size: len(posts), Err: ErrNoAnchors}
		log.Printf("[embed] %v; falling back to %s", err, Fallback)
		return out, []*BatchError{err}
	}

	log.Printf("[embed] Embedding %d posts...", len(posts))
	failures := make([]*BatchError, len(posts))

	var g errgroup.Group
	g.SetLimit(max(c.Concurrency, 1))
	for i, p := range posts {
		g.Go(func() error {
			text := strings.TrimSpace(p.Text)
			if text == "" {
				failures[i] = &BatchError{Batch: i, Start: i, Size: 1, Err: errors.New("post has no text")}
				return nil
			}
			vec, err := c.embed(ctx, text)
			if err != nil {
				failures[i] = &BatchError{Batch: i, Start: i, Size: 1, Err: err}
				log.Printf("[embed] WARNING: %v", failures[i])
				return nil
			}
			out[i].Category = nearest(anchors, vec)
			return nil
		})
	}
	_ = g.Wait()

	var errs []*BatchError
	for _, f := range failures {
		if f != nil {
			errs = append(errs, f)
		}
	}
	log.Printf("[embed] Classified %d/%d posts", len(posts)-len(errs), len(posts))
	return out, errs
}

// embedAnchors embeds one anchor per label in taxonomy order, skipping
// labels whose anchor fails
func (c *EmbeddingClassifier) embedAnchors(ctx context.Context) []anchor {
	descriptions := c.Descriptions
	if descriptions == nil {
		descriptions = DefaultDescriptions
	}

	labels := c.Taxonomy.Labels()
	log.Printf("[embed] Embedding %d category anchors", len(labels))
	anchors := make([]anchor, 0, len(labels))
	for _, label := range labels {
		text, ok := descriptions[label]
		if !ok || strings.TrimSpace(text) == "" {
			text = label
		}
		vec, err := c.embed(ctx, text)
		if err != nil {
			log.Printf("[embed] WARNING: failed to embed category %q: %v", label, err)
			continue
		}
		anchors = append(anchors, anchor{label: label, vec: vec})
	}
	return anchors
}

func (c *EmbeddingClassifier) embed(ctx context.Context, text string) ([]float32, error) {
	policy := c.Policy
	if policy.Retryable == nil {
		policy.Retryable = llm.IsTransient
	}
	vec, err := retry.Do(ctx, policy, func(ctx context.Context) ([]float32, error) {
		return c.Embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

// nearest returns the label of the most similar anchor. Ties go to the
// earlier label in taxonomy order.
func nearest(anchors []anchor, vec []float32) string {
	best, bestSim := anchors[0].label, math.Inf(-1)
	for _, a := range anchors {
		if sim := cosineSimilarity(vec, a.vec); sim > bestSim {
			best, bestSim = a.label, sim
		}
	}
	return best
}

// cosineSimilarity is 0 when either vector has zero norm. Vectors of
// different lengths are compared over their common prefix.
func cosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA < 1e-20 || normB < 1e-20 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
