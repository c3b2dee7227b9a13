// Package classifier assigns posts to a fixed set of categories with batched
// model calls.
package classifier

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/dailyintel/internal/llm"
	"github.com/ibeckermayer/dailyintel/internal/retry"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// DefaultBatchSize is the number of posts classified per model call
const DefaultBatchSize = 10

// BatchError reports a batch whose posts fell back to Fallback
type BatchError struct {
	Batch int // 0-based
	Start int // index of the batch's first post
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("classify batch %d (posts %d-%d): %v", e.Batch+1, e.Start+1, e.Start+e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Classifier labels posts using a model
type Classifier struct {
	Model    llm.Model
	Policy   retry.Policy
	Taxonomy Taxonomy
	// BatchSize defaults to DefaultBatchSize
	BatchSize int
	// Concurrency is the number of batches in flight; defaults to 1
	Concurrency int
}

// Classify labels every post. The output has the same order and length as
// posts. Batches that fail are reported and their posts get Fallback; they
// never abort the others.
func (c *Classifier) Classify(ctx context.Context, posts []types.ScoredPost) ([]types.CategorizedPost, []*BatchError) {
	if len(posts) == 0 {
		return nil, nil
	}

	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	numBatches := (len(posts) + batchSize - 1) / batchSize

	// One slot per batch so results land in input order
	labels := make([][]string, numBatches)
	failures := make([]*BatchError, numBatches)

	var g errgroup.Group
	g.SetLimit(max(c.Concurrency, 1))

	for i := 0; i < len(posts); i += batchSize {
		batchIdx := i / batchSize
		start := i
		end := min(i+batchSize, len(posts))
		batch := posts[start:end]

		g.Go(func() error {
			log.Printf("[classify] Classifying batch %d/%d (%d posts)", batchIdx+1, numBatches, len(batch))
			got, err := c.classifyBatch(ctx, batch)
			if err != nil {
				failures[batchIdx] = &BatchError{Batch: batchIdx, Start: start, Size: len(batch), Err: err}
				log.Printf("[classify] %v; falling back to %s", failures[batchIdx], Fallback)
				got = make([]string, len(batch))
				for j := range got {
					got[j] = Fallback
				}
			}
			labels[batchIdx] = got
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.CategorizedPost, 0, len(posts))
	for b, batchLabels := range labels {
		for j, label := range batchLabels {
			out = append(out, types.CategorizedPost{
				ScoredPost: posts[b*batchSize+j],
				Category:   label,
			})
		}
	}

	var errs []*BatchError
	for _, f := range failures {
		if f != nil {
			errs = append(errs, f)
		}
	}
	return out, errs
}

func (c *Classifier) classifyBatch(ctx context.Context, batch []types.ScoredPost) ([]string, error) {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.Text
	}
	prompt := BuildPrompt(c.Taxonomy, texts)

	policy := c.Policy
	if policy.Retryable == nil {
		policy.Retryable = llm.IsTransient
	}
	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return c.Model.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return ParseResponse(c.Taxonomy, resp, len(batch))
}

// BuildPrompt asks for one label per post as a numbered list
func BuildPrompt(t Taxonomy, texts []string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Classify the following %d social media posts into exactly ONE of these categories each:\n", len(texts)))
	for _, l := range t.labels {
		sb.WriteString("- " + l + "\n")
	}
	sb.WriteString("\nRespond with a simple numbered list in the format:\n")
	sb.WriteString("1. [Category Name]\n")
	sb.WriteString("2. [Category Name]\n")
	sb.WriteString(fmt.Sprintf("... (up to %d)\n\n", len(texts)))
	sb.WriteString("POSTS:\n")
	for i, text := range texts {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, strings.Join(strings.Fields(text), " ")))
	}

	return sb.String()
}

var answerLineRe = regexp.MustCompile(`^\s*\**\s*(\d+)\s*[.)]\s*(.*)$`)

// ParseResponse reads "N. label" or "N) label" lines into one label per
// post. Posts without a line, or whose line matches nothing, get Fallback.
// A response without a single usable line is an error.
func ParseResponse(t Taxonomy, resp string, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		out[i] = Fallback
	}

	found := 0
	for _, line := range strings.Split(resp, "\n") {
		m := answerLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n {
			continue
		}
		out[idx-1] = t.Match(m[2])
		found++
	}

	if found == 0 {
		return nil, fmt.Errorf("no numbered answers in response: %.200q", resp)
	}
	return out, nil
}
