package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/dailyintel/internal/scraper"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

type fakeFetcher struct {
	platform   types.Platform
	configured bool
	posts      []types.Post
	err        error
	calls      int
}

func (f *fakeFetcher) Platform() types.Platform { return f.platform }
func (f *fakeFetcher) Configured() bool         { return f.configured }

func (f *fakeFetcher) Fetch(ctx context.Context, w Window) ([]types.Post, error) {
	f.calls++
	return f.posts, f.err
}

func post(platform types.Platform, id string) types.Post {
	return types.Post{
		ID:           id,
		Platform:     platform,
		AuthorHandle: "someone",
		AuthorName:   "Someone",
		CreatedAt:    now,
	}
}

func TestResolveSources(t *testing.T) {
	got, err := ResolveSources(nil)
	require.NoError(t, err)
	assert.Equal(t, types.Platforms, got)

	got, err = ResolveSources([]string{"bluesky", "ALL"})
	require.NoError(t, err)
	assert.Equal(t, types.Platforms, got)

	got, err = ResolveSources([]string{"mastodon", "x", "mastodon"})
	require.NoError(t, err)
	assert.Equal(t, []types.Platform{types.PlatformMastodon, types.PlatformX}, got)

	_, err = ResolveSources([]string{"myspace"})
	assert.Error(t, err)
}

func TestCollectMergesAndDedupes(t *testing.T) {
	x := &fakeFetcher{platform: types.PlatformX, configured: true,
		posts: []types.Post{post(types.PlatformX, "1"), post(types.PlatformX, "2")}}
	bsky := &fakeFetcher{platform: types.PlatformBluesky, configured: true,
		posts: []types.Post{post(types.PlatformBluesky, "1"), post(types.PlatformBluesky, "1")}}

	posts, err := Collect(context.Background(), []Fetcher{x, bsky}, []string{"all"}, Window{Hours: 24})
	require.NoError(t, err)
	assert.Len(t, posts, 3, "same id on different platforms is kept, repeats on one platform are not")
}

func TestCollectPartialFailure(t *testing.T) {
	x := &fakeFetcher{platform: types.PlatformX, configured: true, err: errors.New("feed did not load")}
	masto := &fakeFetcher{platform: types.PlatformMastodon, configured: true,
		posts: []types.Post{post(types.PlatformMastodon, "9")}}

	posts, err := Collect(context.Background(), []Fetcher{x, masto}, nil, Window{Hours: 24})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, types.PlatformMastodon, posts[0].Platform)
}

func TestCollectAllFailed(t *testing.T) {
	x := &fakeFetcher{platform: types.PlatformX, configured: true, err: errors.New("feed did not load")}
	bsky := &fakeFetcher{platform: types.PlatformBluesky, configured: true, err: &HTTPError{StatusCode: 401, URL: "u"}}

	_, err := Collect(context.Background(), []Fetcher{x, bsky}, []string{"all"}, Window{Hours: 24})
	require.Error(t, err)

	var pe *PlatformError
	require.ErrorAs(t, err, &pe)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 401, he.StatusCode)
	assert.Contains(t, err.Error(), "feed did not load")
}

func TestCollectEmptyIsError(t *testing.T) {
	bsky := &fakeFetcher{platform: types.PlatformBluesky, configured: true}

	_, err := Collect(context.Background(), []Fetcher{bsky}, nil, Window{Hours: 24})
	assert.Error(t, err)
}

func TestCollectSelection(t *testing.T) {
	x := &fakeFetcher{platform: types.PlatformX, configured: false}
	bsky := &fakeFetcher{platform: types.PlatformBluesky, configured: true,
		posts: []types.Post{post(types.PlatformBluesky, "1")}}
	masto := &fakeFetcher{platform: types.PlatformMastodon, configured: true,
		posts: []types.Post{post(types.PlatformMastodon, "1")}}
	fetchers := []Fetcher{x, bsky, masto}

	posts, err := Collect(context.Background(), fetchers, []string{"bluesky"}, Window{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 0, masto.calls)

	_, err = Collect(context.Background(), fetchers, []string{"x"}, Window{Hours: 24})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configured platform")
	assert.Equal(t, 0, x.calls, "unconfigured platforms are never fetched")

	_, err = Collect(context.Background(), fetchers, []string{"friendster"}, Window{Hours: 24})
	assert.Error(t, err)
}

func TestTrimWindow(t *testing.T) {
	posts := []types.Post{
		{ID: "a", CreatedAt: now.Add(-time.Hour)},
		{ID: "b", CreatedAt: now.Add(-23 * time.Hour)},
		{ID: "c", CreatedAt: now.Add(-25 * time.Hour)},
	}
	w := Window{Hours: 24}

	got := trimWindow(append([]types.Post(nil), posts...), w, w.Cutoff(now))
	assert.Len(t, got, 2)

	got = trimWindow(append([]types.Post(nil), posts...), Window{Hours: 24, Limit: 1}, w.Cutoff(now))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

type fakeSession struct {
	valid   bool
	cookies []*network.Cookie
}

func (s *fakeSession) IsValid(time.Time) bool               { return s.valid }
func (s *fakeSession) XCookies() ([]*network.Cookie, error) { return s.cookies, nil }

type fakeTimeline struct {
	req   scraper.Request
	posts []types.Post
}

func (f *fakeTimeline) ScrapeHome(ctx context.Context, cookies []*network.Cookie, req scraper.Request) ([]types.Post, error) {
	f.req = req
	return f.posts, nil
}

func TestXFetch(t *testing.T) {
	timeline := &fakeTimeline{posts: []types.Post{
		{ID: "old", Platform: types.PlatformX, CreatedAt: now.Add(-30 * time.Hour)},
		{ID: "new", Platform: types.PlatformX, CreatedAt: now.Add(-time.Hour)},
	}}
	x := NewXWith(&fakeSession{valid: true}, timeline)
	x.Now = fixedNow

	assert.True(t, x.Configured())

	posts, err := x.Fetch(context.Background(), Window{Hours: 24})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "new", posts[0].ID)
	assert.True(t, timeline.req.Since.Equal(now.Add(-24*time.Hour)))

	assert.False(t, NewXWith(&fakeSession{valid: false}, timeline).Configured())
}
