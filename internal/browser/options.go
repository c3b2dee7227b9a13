// Package browser holds the chromedp setup shared by the X login flow, the
// timeline scraper and the fingerprint check in dictl.
package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

// DefaultUserAgent matches a current desktop Chrome
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Settings describes a browser session
type Settings struct {
	Headless  bool
	UserAgent string
	Width     int
	Height    int
	// Maximized opens the window full screen, for interactive login
	Maximized bool
}

// Options returns allocator options for s. Every session hides
// navigator.webdriver, which is what X checks first.
func Options(s Settings) []chromedp.ExecAllocatorOption {
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = 1920, 1080
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(s.UserAgent),
		chromedp.WindowSize(s.Width, s.Height),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	if s.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}
	if s.Maximized {
		opts = append(opts, chromedp.Flag("start-maximized", true))
	}

	return opts
}

// NewContext starts a browser for s. The returned cancel shuts down both the
// tab and the browser process.
func NewContext(parent context.Context, s Settings) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, Options(s)...)
	ctx, cancel := chromedp.NewContext(allocCtx)
	return ctx, func() {
		cancel()
		allocCancel()
	}
}
