// Package fetch pulls the home timelines of the supported platforms into
// normalized posts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/dailyintel/internal/config"
	"github.com/ibeckermayer/dailyintel/internal/retry"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// SourceAll selects every platform
const SourceAll = "all"

// Window bounds a fetch. With Limit set a fetcher returns that many of the
// most recent posts; otherwise it returns everything from the last Hours.
type Window struct {
	Hours int
	Limit int
}

// Cutoff is the oldest creation time inside the window
func (w Window) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(w.Hours) * time.Hour)
}

func (w Window) String() string {
	if w.Limit > 0 {
		return fmt.Sprintf("last %d posts", w.Limit)
	}
	return fmt.Sprintf("last %dh", w.Hours)
}

// Fetcher reads one platform's home timeline
type Fetcher interface {
	Platform() types.Platform
	// Configured reports whether the credentials the fetcher needs are present
	Configured() bool
	Fetch(ctx context.Context, w Window) ([]types.Post, error)
}

// PlatformError is a failed fetch from one platform
type PlatformError struct {
	Platform types.Platform
	Err      error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %v", e.Platform, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// FromConfig builds a fetcher for every platform
func FromConfig(cfg *config.Config, client *http.Client) []Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	policy := retry.Default()
	policy.MaxAttempts = 3
	policy.BaseDelay = 2 * time.Second

	bsky := NewBluesky(cfg.Bluesky, client)
	bsky.Policy = policy
	masto := NewMastodon(cfg.Mastodon, client)
	masto.Policy = policy

	return []Fetcher{NewX(cfg.X), bsky, masto}
}

// ResolveSources turns source names into platforms; "all" means every
// platform
func ResolveSources(sources []string) ([]types.Platform, error) {
	if len(sources) == 0 {
		return slices.Clone(types.Platforms), nil
	}

	var out []types.Platform
	for _, s := range sources {
		if strings.EqualFold(strings.TrimSpace(s), SourceAll) {
			return slices.Clone(types.Platforms), nil
		}
		p, err := types.ParsePlatform(s)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Collect fetches every configured platform among sources concurrently and
// merges the results, dropping duplicate (platform, id) pairs. A platform
// that fails is logged and skipped; Collect only fails when no platform
// produced any posts.
func Collect(ctx context.Context, fetchers []Fetcher, sources []string, w Window) ([]types.Post, error) {
	platforms, err := ResolveSources(sources)
	if err != nil {
		return nil, err
	}

	var selected []Fetcher
	for _, f := range fetchers {
		if !slices.Contains(platforms, f.Platform()) {
			continue
		}
		if !f.Configured() {
			log.Printf("[fetch] %s is not configured, skipping", f.Platform())
			continue
		}
		selected = append(selected, f)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no configured platform among sources %v; check credentials", sourcesString(sources))
	}

	results := make([][]types.Post, len(selected))
	errs := make([]error, len(selected))

	var g errgroup.Group
	for i, f := range selected {
		g.Go(func() error {
			log.Printf("[fetch] Fetching %s (%s)", f.Platform(), w)
			posts, err := f.Fetch(ctx, w)
			if err != nil {
				errs[i] = &PlatformError{Platform: f.Platform(), Err: err}
				return nil
			}
			log.Printf("[fetch] %s returned %d posts", f.Platform(), len(posts))
			results[i] = posts
			return nil
		})
	}
	_ = g.Wait()

	var all []types.Post
	for _, posts := range results {
		all = append(all, posts...)
	}
	joined := errors.Join(errs...)

	if len(all) == 0 {
		if joined != nil {
			return nil, fmt.Errorf("no posts fetched: %w", joined)
		}
		return nil, fmt.Errorf("no posts fetched for sources %v", sourcesString(sources))
	}
	if joined != nil {
		log.Printf("[fetch] Continuing without failed platforms: %v", joined)
	}

	deduped := types.Dedupe(all)
	if dropped := len(all) - len(deduped); dropped > 0 {
		log.Printf("[fetch] Dropped %d duplicate posts", dropped)
	}
	return deduped, nil
}

func sourcesString(sources []string) string {
	if len(sources) == 0 {
		return SourceAll
	}
	return strings.Join(sources, ",")
}

// trimWindow applies w to posts already sorted newest first
func trimWindow(posts []types.Post, w Window, cutoff time.Time) []types.Post {
	if w.Limit > 0 {
		if len(posts) > w.Limit {
			return posts[:w.Limit]
		}
		return posts
	}

	out := posts[:0]
	for _, p := range posts {
		if !p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// newestFirst orders posts by creation time, newest first
func newestFirst(posts []types.Post) {
	slices.SortStableFunc(posts, func(a, b types.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
