package intel

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/dailyintel/internal/classifier"
	"github.com/ibeckermayer/dailyintel/internal/digest"
	"github.com/ibeckermayer/dailyintel/internal/llm"
	"github.com/ibeckermayer/dailyintel/internal/retry"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// MapReduce fits a briefing through a small context window: classify every
// post, keep the best few per category, draft one section per category, then
// summarize the drafts.
type MapReduce struct {
	Model      llm.Model
	Policy     retry.Policy
	Classifier classifier.Labeler

	// TopK defaults to classifier.DefaultTopK
	TopK             int
	ExecutiveSummary bool
	// Concurrency is the number of section drafts in flight; defaults to 1
	Concurrency int

	// OnClassified, when set, receives every post with its label after the
	// map phase
	OnClassified func([]types.CategorizedPost)
}

func (m *MapReduce) Name() string { return "map-reduce" }

// Section is one drafted category of the report
type Section struct {
	Category string
	Body     string
	Sources  []types.CategorizedPost
	Err      error
}

// Synthesize runs the four phases. Only unparseable input is returned as an
// error; failed model calls become placeholders in the report.
func (m *MapReduce) Synthesize(ctx context.Context, in Input) (string, error) {
	posts := in.Posts
	if len(posts) == 0 {
		parsed, err := digest.Parse(in.Text)
		if err != nil {
			return "", err
		}
		posts = parsed
	}

	// Map
	log.Printf("[intel] Map-reduce: %d posts to classify", len(posts))
	categorized, failed := m.Classifier.Classify(ctx, posts)
	if len(failed) > 0 {
		log.Printf("[intel] %d classification batch(es) fell back to %s", len(failed), classifier.Fallback)
	}
	if m.OnClassified != nil {
		m.OnClassified(categorized)
	}

	// Select
	categories := classifier.SelectTopK(m.Classifier.Categories(), categorized, m.TopK)
	counts := make([]string, len(categories))
	for i, c := range categories {
		counts[i] = fmt.Sprintf("%s=%d", c.Label, len(c.Posts))
	}
	log.Printf("[intel] Category distribution: %s", strings.Join(counts, ", "))

	// Draft
	sections := m.draft(ctx, categories)

	// Reduce
	var sb strings.Builder
	sb.WriteString(Header(generatedAt(in), m.Model))

	if len(sections) == 0 {
		sb.WriteString("_No posts could be assigned to a category._\n")
		return sb.String(), nil
	}

	if m.ExecutiveSummary {
		sb.WriteString("## Executive Summary\n\n")
		sb.WriteString(m.summarize(ctx, sections))
		sb.WriteString("\n\n---\n\n")
	}

	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		writeSection(&sb, s)
	}

	return sb.String(), nil
}

// draft writes one section per category; output keeps taxonomy order
func (m *MapReduce) draft(ctx context.Context, categories []classifier.Category) []Section {
	sections := make([]Section, len(categories))

	var g errgroup.Group
	g.SetLimit(max(m.Concurrency, 1))

	for i, c := range categories {
		g.Go(func() error {
			log.Printf("[intel] Generating section: %s (%d posts)", c.Label, len(c.Posts))
			sections[i] = Section{Category: c.Label, Sources: c.Posts}

			resp, err := m.generate(ctx, buildSectionPrompt(c.Label, c.Posts))
			if err != nil {
				log.Printf("[intel] Section %s unavailable: %v", c.Label, err)
				sections[i].Err = err
				return nil
			}
			sections[i].Body = cleanSection(c.Label, resp)
			return nil
		})
	}
	_ = g.Wait()

	return sections
}

func (m *MapReduce) summarize(ctx context.Context, sections []Section) string {
	var drafted []string
	for _, s := range sections {
		if s.Err == nil {
			drafted = append(drafted, fmt.Sprintf("**%s**\n%s", s.Category, s.Body))
		}
	}
	if len(drafted) == 0 {
		return "_Executive summary unavailable: no sections could be drafted._"
	}

	log.Printf("[intel] Generating executive summary")
	resp, err := m.generate(ctx, buildSummaryPrompt(drafted))
	if err != nil {
		log.Printf("[intel] Executive summary unavailable: %v", err)
		return fmt.Sprintf("_Executive summary unavailable: %v_", err)
	}
	return strings.TrimSpace(stripTitle(resp))
}

func (m *MapReduce) generate(ctx context.Context, prompt string) (string, error) {
	policy := m.Policy
	if policy.Retryable == nil {
		policy.Retryable = llm.IsTransient
	}
	return retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return m.Model.Generate(ctx, prompt)
	})
}

func writeSection(sb *strings.Builder, s Section) {
	sb.WriteString("## " + s.Category + "\n\n")
	if s.Err != nil {
		sb.WriteString(fmt.Sprintf("_Section unavailable: %v_\n", s.Err))
	} else {
		sb.WriteString(s.Body + "\n")
	}

	sb.WriteString("\n**Sources:**\n")
	for _, p := range s.Sources {
		sb.WriteString(fmt.Sprintf("- [@%s](%s) [%s] ⚡ %d\n", p.AuthorHandle, p.URL, p.Platform, p.EngagementScore))
	}
}
