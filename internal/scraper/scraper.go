// Package scraper reads the X home timeline through a real browser session.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/dailyintel/internal/browser"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

const homeURL = "https://x.com/home"

// Scraper extracts posts from the X home timeline
type Scraper struct {
	headless   bool
	maxScrolls int
	timeout    time.Duration
}

// New creates a scraper. maxScrolls bounds how far down the feed it goes.
func New(headless bool, maxScrolls int) *Scraper {
	if maxScrolls <= 0 {
		maxScrolls = 30
	}
	return &Scraper{headless: headless, maxScrolls: maxScrolls, timeout: 5 * time.Minute}
}

// Request bounds a scrape. With Limit set it collects that many posts;
// otherwise it scrolls until posts are older than Since.
type Request struct {
	Since time.Time
	Limit int
}

// ScrapeHome loads the home timeline with the given session and scrolls
// until req is satisfied, newest posts first
func (s *Scraper) ScrapeHome(ctx context.Context, cookies []*network.Cookie, req Request) ([]types.Post, error) {
	browserCtx, cancel := browser.NewContext(ctx, browser.Settings{Headless: s.headless})
	defer cancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, s.timeout)
	defer timeoutCancel()

	if err := injectCookies(browserCtx, cookies); err != nil {
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(homeURL),
		chromedp.WaitVisible(WaitForFeed, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}

	return s.collect(browserCtx, req)
}

func injectCookies(ctx context.Context, cookies []*network.Cookie) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// collect scrolls and accumulates unique posts until the request is met
func (s *Scraper) collect(ctx context.Context, req Request) ([]types.Post, error) {
	acc := newAccumulator(req)

	for scroll := 0; scroll < s.maxScrolls && !acc.done(); scroll++ {
		var raw []rawPost
		if err := chromedp.Run(ctx, chromedp.Evaluate(extractJS, &raw)); err != nil {
			return nil, fmt.Errorf("failed to extract posts from DOM: %w", err)
		}
		acc.add(raw)

		if err := chromedp.Run(ctx, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil)); err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(500+scroll*100) * time.Millisecond):
		}
	}

	log.Printf("[fetch-x] Scraped %d posts (%d skipped)", len(acc.posts), acc.skipped)
	return acc.result(), nil
}

// rawPost is one tweet as read from the DOM
type rawPost struct {
	ID           string `json:"id"`
	AuthorHandle string `json:"authorHandle"`
	AuthorName   string `json:"authorName"`
	Content      string `json:"content"`
	Timestamp    string `json:"timestamp"`
	Likes        string `json:"likes"`
	Retweets     string `json:"retweets"`
	Replies      string `json:"replies"`
	IsRepost     bool   `json:"isRepost"`
	URL          string `json:"url"`
}

// accumulator dedupes posts across scrolls and tracks when to stop
type accumulator struct {
	req     Request
	seen    map[string]bool
	posts   []types.Post
	skipped int
	// pastCutoff is set once an original post older than Since shows up
	pastCutoff bool
}

func newAccumulator(req Request) *accumulator {
	return &accumulator{req: req, seen: make(map[string]bool)}
}

func (a *accumulator) add(raw []rawPost) {
	for _, rp := range raw {
		if rp.ID == "" || a.seen[rp.ID] {
			continue
		}
		a.seen[rp.ID] = true

		p, err := toPost(rp)
		if err != nil {
			// Promoted posts carry no timestamp
			a.skipped++
			continue
		}
		if a.req.Limit <= 0 && p.CreatedAt.Before(a.req.Since) {
			// Reposts surface old posts, so only an original marks the end
			if !rp.IsRepost {
				a.pastCutoff = true
			}
			continue
		}
		a.posts = append(a.posts, p)
	}
}

func (a *accumulator) done() bool {
	if a.req.Limit > 0 {
		return len(a.posts) >= a.req.Limit
	}
	return a.pastCutoff
}

func (a *accumulator) result() []types.Post {
	if a.req.Limit > 0 && len(a.posts) > a.req.Limit {
		return a.posts[:a.req.Limit]
	}
	return a.posts
}

func toPost(rp rawPost) (types.Post, error) {
	if rp.Timestamp == "" {
		return types.Post{}, errors.New("no timestamp")
	}
	created, err := time.Parse(time.RFC3339, rp.Timestamp)
	if err != nil {
		return types.Post{}, fmt.Errorf("bad timestamp %q: %w", rp.Timestamp, err)
	}

	handle := strings.TrimPrefix(rp.AuthorHandle, "@")
	url := rp.URL
	if url == "" {
		url = fmt.Sprintf("https://x.com/%s/status/%s", handle, rp.ID)
	}

	return types.NewPost(types.Post{
		ID:           rp.ID,
		Platform:     types.PlatformX,
		Text:         strings.TrimSpace(rp.Content),
		CreatedAt:    created,
		AuthorName:   strings.TrimSpace(rp.AuthorName),
		AuthorHandle: handle,
		Likes:        parseMetric(rp.Likes),
		Reposts:      parseMetric(rp.Retweets),
		Replies:      parseMetric(rp.Replies),
		URL:          url,
	})
}

// parseMetric converts abbreviated counts like "1.2K", "5.7M", or "1,234"
func parseMetric(s string) int {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}

	multiplier := 1.0
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		multiplier = 1_000
		s = s[:len(s)-1]
	case "M":
		multiplier = 1_000_000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0
	}
	return int(value*multiplier + 0.5)
}
