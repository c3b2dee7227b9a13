package classifier

import (
	"fmt"
	"strings"

	"github.com/ibeckermayer/dailyintel/internal/config"
)

// Fallback is assigned to posts the model's answer could not be matched for
const Fallback = "Uncategorized"

// Taxonomy is a closed, ordered set of category labels
type Taxonomy struct {
	labels []string
}

// NewTaxonomy validates labels and returns a taxonomy in the given order
func NewTaxonomy(labels []string) (Taxonomy, error) {
	if len(labels) == 0 {
		return Taxonomy{}, fmt.Errorf("taxonomy needs at least one label")
	}
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		switch {
		case l == "":
			return Taxonomy{}, fmt.Errorf("taxonomy label must not be empty")
		case strings.EqualFold(l, Fallback):
			return Taxonomy{}, fmt.Errorf("taxonomy label %q is reserved", Fallback)
		case seen[key]:
			return Taxonomy{}, fmt.Errorf("duplicate taxonomy label %q", l)
		}
		seen[key] = true
		out = append(out, l)
	}
	return Taxonomy{labels: out}, nil
}

// DefaultTaxonomy returns the six standard briefing categories
func DefaultTaxonomy() Taxonomy {
	t, _ := NewTaxonomy(config.DefaultTaxonomy)
	return t
}

// Labels returns a copy of the labels in canonical order
func (t Taxonomy) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Contains reports whether label is one of the taxonomy's labels or the fallback
func (t Taxonomy) Contains(label string) bool {
	if label == Fallback {
		return true
	}
	for _, l := range t.labels {
		if l == label {
			return true
		}
	}
	return false
}

// Match maps a raw model answer to a canonical label. The first label, in
// taxonomy order, contained case-insensitively in raw wins; otherwise the
// answer maps to Fallback.
func (t Taxonomy) Match(raw string) string {
	raw = strings.ToLower(raw)
	for _, l := range t.labels {
		if strings.Contains(raw, strings.ToLower(l)) {
			return l
		}
	}
	return Fallback
}
