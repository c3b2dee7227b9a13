package classifier

import (
	"slices"

	"github.com/ibeckermayer/dailyintel/internal/digest"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// DefaultTopK is the number of posts kept per category
const DefaultTopK = 10

// Category holds the posts selected for one taxonomy label
type Category struct {
	Label string
	Posts []types.CategorizedPost
}

// SelectTopK groups posts by label in taxonomy order and keeps the k
// best-ranked of each. Fallback posts and empty categories are left out.
func SelectTopK(t Taxonomy, posts []types.CategorizedPost, k int) []Category {
	if k <= 0 {
		k = DefaultTopK
	}

	byLabel := make(map[string][]types.CategorizedPost)
	for _, p := range posts {
		byLabel[p.Category] = append(byLabel[p.Category], p)
	}

	var out []Category
	for _, label := range t.labels {
		group := byLabel[label]
		if len(group) == 0 {
			continue
		}
		group = slices.Clone(group)
		slices.SortStableFunc(group, func(a, b types.CategorizedPost) int {
			return digest.Compare(a.ScoredPost, b.ScoredPost)
		})
		out = append(out, Category{Label: label, Posts: group[:min(k, len(group))]})
	}
	return out
}
