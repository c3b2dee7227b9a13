// Package types defines the posts that flow through the pipeline and the
// scored and categorized forms they take along the way.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the social network a post came from
type Platform string

const (
	PlatformX        Platform = "x"
	PlatformBluesky  Platform = "bluesky"
	PlatformMastodon Platform = "mastodon"
)

// Platforms lists every supported platform in display order
var Platforms = []Platform{PlatformX, PlatformBluesky, PlatformMastodon}

// ParsePlatform converts a platform name into a Platform
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform: %q", s)
}

// Post is a normalized post from any platform. Treat it as immutable once
// built with NewPost.
type Post struct {
	ID           string    `json:"id"`
	Platform     Platform  `json:"platform"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
	AuthorName   string    `json:"author_name"`
	AuthorHandle string    `json:"author_handle"`
	Likes        int       `json:"likes"`
	Reposts      int       `json:"reposts"`
	Replies      int       `json:"replies"`
	URL          string    `json:"url"`
}

// NewPost validates p and returns a copy with CreatedAt in UTC.
// An empty author name falls back to the handle.
func NewPost(p Post) (Post, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Post{}, fmt.Errorf("post id is required")
	}
	platform, err := ParsePlatform(string(p.Platform))
	if err != nil {
		return Post{}, fmt.Errorf("post %s: %w", p.ID, err)
	}
	p.Platform = platform
	if strings.TrimSpace(p.AuthorHandle) == "" {
		return Post{}, fmt.Errorf("post %s: author handle is required", p.ID)
	}
	if p.Likes < 0 || p.Reposts < 0 || p.Replies < 0 {
		return Post{}, fmt.Errorf("post %s: negative engagement counts (%d likes, %d reposts, %d replies)",
			p.ID, p.Likes, p.Reposts, p.Replies)
	}
	if p.AuthorName == "" {
		p.AuthorName = p.AuthorHandle
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// Key identifies a post uniquely within a batch
type Key struct {
	Platform Platform
	ID       string
}

// Key returns the batch-unique identity of the post
func (p Post) Key() Key {
	return Key{Platform: p.Platform, ID: p.ID}
}

// ScoredPost is a post with its engagement metrics attached
type ScoredPost struct {
	Post
	EngagementScore int     `json:"engagement_score"`
	NormalizedScore float64 `json:"normalized_score"`
}

// CategorizedPost is a scored post with a thematic label
type CategorizedPost struct {
	ScoredPost
	Category string `json:"category"`
}

// Dedupe drops posts whose (platform, id) was already seen, keeping the first
func Dedupe(posts []Post) []Post {
	seen := make(map[Key]bool, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		out = append(out, p)
	}
	return out
}
