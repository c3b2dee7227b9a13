package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cookie(name, value, domain string, expires time.Time) *network.Cookie {
	return &network.Cookie{
		Name:    name,
		Value:   value,
		Domain:  domain,
		Path:    "/",
		Expires: float64(expires.Unix()),
	}
}

func TestCookieStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cs := NewCookieStore(filepath.Join(dir, "nested", "x_session.json"))

	soon := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	later := soon.Add(48 * time.Hour)
	cookies := []*network.Cookie{
		cookie("auth_token", "tok", ".x.com", later),
		cookie("ct0", "csrf", ".x.com", soon),
		cookie("guest_id", "g", ".x.com", soon.Add(-time.Hour)),
		cookie("_ga", "ga", ".google.com", later),
	}
	require.NoError(t, cs.Save(cookies))

	info, err := os.Stat(cs.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.Len(t, stored.Cookies, 4)
	assert.True(t, stored.ExpiresAt.Equal(soon), "expiry is the earliest required cookie, got %s", stored.ExpiresAt)

	x, err := cs.XCookies()
	require.NoError(t, err)
	assert.Len(t, x, 3)

	assert.True(t, cs.IsValid(soon.Add(-time.Minute)))
	assert.False(t, cs.IsValid(soon.Add(time.Minute)))
}

func TestCookieStoreIsValidRequiresBothCookies(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "x_session.json"))
	exp := time.Now().Add(24 * time.Hour)

	require.NoError(t, cs.Save([]*network.Cookie{cookie("auth_token", "tok", ".x.com", exp)}))
	assert.False(t, cs.IsValid(time.Now()))

	require.NoError(t, cs.Save([]*network.Cookie{
		cookie("auth_token", "tok", ".x.com", exp),
		cookie("ct0", "", ".x.com", exp),
	}))
	assert.False(t, cs.IsValid(time.Now()), "an empty ct0 is not a session")
}

func TestCookieStoreMissingAndClear(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "x_session.json"))

	_, err := cs.Load()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, cs.IsValid(time.Now()))
	assert.NoError(t, cs.Clear())

	require.NoError(t, cs.Save(nil))
	require.NoError(t, cs.Clear())
	_, err = cs.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCookieStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x_session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewCookieStore(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt session file")
}
