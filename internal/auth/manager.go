// Package auth captures and stores the X session used by the timeline scraper.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/dailyintel/internal/browser"
)

const (
	loginURL = "https://x.com/login"
	// LoginTimeout is how long the user has to finish signing in
	LoginTimeout = 5 * time.Minute
)

var homeURLs = map[string]bool{
	"https://x.com/home":       true,
	"https://twitter.com/home": true,
}

// Manager handles the interactive X login
type Manager struct {
	cookieStore *CookieStore
}

func NewManager(cookieStore *CookieStore) *Manager {
	return &Manager{cookieStore: cookieStore}
}

func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid(time.Now())
}

// Login opens a visible browser on the X login page, waits for the user to
// reach the home timeline and saves the session cookies
func (m *Manager) Login(ctx context.Context) error {
	browserCtx, cancel := browser.NewContext(ctx, browser.Settings{Maximized: true})
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(loginURL)); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}

	log.Printf("[auth] Waiting up to %s for login to complete", LoginTimeout)
	if err := m.waitForLogin(browserCtx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cookies, err := extractCookies(browserCtx)
	if err != nil {
		return fmt.Errorf("failed to extract cookies: %w", err)
	}
	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	log.Printf("[auth] Saved X session to %s", m.cookieStore.Path())
	return nil
}

// waitForLogin polls the tab until it lands on the home timeline with an
// auth_token cookie set
func (m *Manager) waitForLogin(ctx context.Context) error {
	timeout := time.After(LoginTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return errors.New("login timeout exceeded")
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !homeURLs[url] {
				continue
			}

			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == "auth_token" && c.Value != "" {
					return nil
				}
			}
		}
	}
}

func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

// Logout clears the saved session
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}
