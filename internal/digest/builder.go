// Package digest ranks posts into a markdown digest and reads one back.
package digest

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ibeckermayer/dailyintel/internal/scoring"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// Options controls digest assembly
type Options struct {
	// IntelLimit caps the posts handed to synthesis. Zero or negative means no cap.
	IntelLimit  int
	GeneratedAt time.Time
}

// Group is one author's posts in global rank order
type Group struct {
	Platform     types.Platform
	AuthorHandle string
	AuthorName   string
	Posts        []types.ScoredPost
}

// Hot reports whether any post in the group earns the heat marker
func (g Group) Hot() bool {
	for _, p := range g.Posts {
		if scoring.IsHot(p.EngagementScore) {
			return true
		}
	}
	return false
}

// Digest is the ranked, grouped listing of a run's posts
type Digest struct {
	GeneratedAt time.Time

	// Ranked holds every post in global rank order
	Ranked []types.ScoredPost
	Groups []Group

	// Intel is the prefix of Ranked handed to synthesis
	Intel       []types.ScoredPost
	IntelGroups []Group
}

// Truncated reports whether the intel subset is smaller than the full listing
func (d *Digest) Truncated() bool {
	return len(d.Intel) < len(d.Ranked)
}

// Build scores, ranks and groups posts into a digest
func Build(posts []types.Post, opts Options) (*Digest, error) {
	seen := make(map[types.Key]bool, len(posts))
	for _, p := range posts {
		if seen[p.Key()] {
			return nil, fmt.Errorf("duplicate post %s/%s in batch", p.Platform, p.ID)
		}
		seen[p.Key()] = true
	}

	generatedAt := opts.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	ranked := scoring.Normalize(posts)
	Rank(ranked)

	intel := ranked
	if opts.IntelLimit > 0 && opts.IntelLimit < len(ranked) {
		intel = ranked[:opts.IntelLimit]
	}

	return &Digest{
		GeneratedAt: generatedAt.UTC(),
		Ranked:      ranked,
		Groups:      GroupByAuthor(ranked),
		Intel:       intel,
		IntelGroups: GroupByAuthor(intel),
	}, nil
}

// Compare orders posts for ranking: normalized score desc, engagement desc,
// newest first, then platform and id for a total order.
func Compare(a, b types.ScoredPost) int {
	if c := cmp.Compare(b.NormalizedScore, a.NormalizedScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.EngagementScore, a.EngagementScore); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Platform), string(b.Platform)); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Rank sorts posts in place into global rank order
func Rank(posts []types.ScoredPost) {
	slices.SortStableFunc(posts, Compare)
}

// GroupByAuthor groups ranked posts by (platform, handle). Groups appear in
// the order of their highest-ranked post.
func GroupByAuthor(ranked []types.ScoredPost) []Group {
	type groupKey struct {
		platform types.Platform
		handle   string
	}

	index := make(map[groupKey]int)
	var groups []Group
	for _, p := range ranked {
		k := groupKey{p.Platform, p.AuthorHandle}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{
				Platform:     p.Platform,
				AuthorHandle: p.AuthorHandle,
				AuthorName:   p.AuthorName,
			})
		}
		groups[i].Posts = append(groups[i].Posts, p)
	}
	return groups
}
