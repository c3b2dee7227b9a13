package fetch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/dailyintel/internal/auth"
	"github.com/ibeckermayer/dailyintel/internal/config"
	"github.com/ibeckermayer/dailyintel/internal/scraper"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// Session supplies the saved X login
type Session interface {
	IsValid(now time.Time) bool
	XCookies() ([]*network.Cookie, error)
}

// Timeline scrapes the X home feed
type Timeline interface {
	ScrapeHome(ctx context.Context, cookies []*network.Cookie, req scraper.Request) ([]types.Post, error)
}

// X reads the home timeline by driving a browser with the saved session
type X struct {
	enabled  bool
	session  Session
	timeline Timeline

	Now func() time.Time
}

// NewX uses the default session file; a missing file leaves X unconfigured
func NewX(cfg config.XConfig) *X {
	x := &X{
		enabled:  cfg.Enabled,
		timeline: scraper.New(cfg.Headless, cfg.MaxScrolls),
		Now:      time.Now,
	}
	if path, err := auth.DefaultCookieStorePath(); err == nil {
		x.session = auth.NewCookieStore(path)
	} else {
		log.Printf("[fetch-x] No session path: %v", err)
	}
	return x
}

// NewXWith builds an X fetcher from explicit parts
func NewXWith(session Session, timeline Timeline) *X {
	return &X{enabled: true, session: session, timeline: timeline, Now: time.Now}
}

func (x *X) Platform() types.Platform { return types.PlatformX }

func (x *X) Configured() bool {
	return x.enabled && x.session != nil && x.session.IsValid(x.Now())
}

func (x *X) Fetch(ctx context.Context, w Window) ([]types.Post, error) {
	cookies, err := x.session.XCookies()
	if err != nil {
		return nil, fmt.Errorf("loading X session: %w", err)
	}

	cutoff := w.Cutoff(x.Now())
	posts, err := x.timeline.ScrapeHome(ctx, cookies, scraper.Request{Since: cutoff, Limit: w.Limit})
	if err != nil {
		return nil, err
	}

	newestFirst(posts)
	posts = trimWindow(posts, w, cutoff)
	log.Printf("[fetch-x] Retrieved %d posts", len(posts))
	return posts, nil
}
