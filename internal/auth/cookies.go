package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/dailyintel/internal/config"
)

// X needs both of these to serve the home timeline
var requiredCookies = []string{"auth_token", "ct0"}

// ErrNoSession means no X session has been saved yet
var ErrNoSession = errors.New("no saved X session; run `dailyintel login`")

// CookieStore persists the X session captured by Login
type CookieStore struct {
	path string
}

// StoredCookies is the on-disk session
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// DefaultCookieStorePath is x_session.json in the config directory
func DefaultCookieStorePath() (string, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "x_session.json"), nil
}

func (cs *CookieStore) Path() string { return cs.path }

// Save writes cookies with owner-only permissions. The session expires with
// the earliest of the required cookies.
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return err
	}

	stored := StoredCookies{
		Cookies:    cookies,
		CapturedAt: time.Now().UTC(),
		ExpiresAt:  sessionExpiry(cookies),
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, data, 0600)
}

func sessionExpiry(cookies []*network.Cookie) time.Time {
	var earliest time.Time
	for _, c := range cookies {
		if !isRequired(c.Name) || c.Expires <= 0 {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0).UTC()
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}
	return earliest
}

func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", cs.path, err)
	}
	return &stored, nil
}

// IsValid reports whether a saved session has every required cookie and has
// not expired at now
func (cs *CookieStore) IsValid(now time.Time) bool {
	stored, err := cs.Load()
	if err != nil {
		return false
	}
	if stored.ExpiresAt.IsZero() || now.After(stored.ExpiresAt) {
		return false
	}

	have := make(map[string]bool)
	for _, c := range stored.Cookies {
		if c.Value != "" {
			have[c.Name] = true
		}
	}
	for _, name := range requiredCookies {
		if !have[name] {
			return false
		}
	}
	return true
}

// Clear removes the saved session; clearing twice is not an error
func (cs *CookieStore) Clear() error {
	err := os.Remove(cs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// XCookies returns the saved cookies scoped to x.com
func (cs *CookieStore) XCookies() ([]*network.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}

	var out []*network.Cookie
	for _, c := range stored.Cookies {
		if c.Domain == ".x.com" || c.Domain == "x.com" {
			out = append(out, c)
		}
	}
	return out, nil
}

func isRequired(name string) bool {
	for _, r := range requiredCookies {
		if name == r {
			return true
		}
	}
	return false
}
