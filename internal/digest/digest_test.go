package digest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/dailyintel/internal/types"
)

var base = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

func post(platform types.Platform, id, handle string, likes, reposts, replies int, age time.Duration) types.Post {
	return types.Post{
		ID:           id,
		Platform:     platform,
		Text:         "post " + id,
		CreatedAt:    base.Add(-age),
		AuthorName:   strings.ToUpper(handle),
		AuthorHandle: handle,
		Likes:        likes,
		Reposts:      reposts,
		Replies:      replies,
		URL:          fmt.Sprintf("https://example.com/%s/%s", handle, id),
	}
}

func samplePosts() []types.Post {
	return []types.Post{
		post(types.PlatformX, "1", "alice", 100, 20, 5, time.Hour),
		post(types.PlatformX, "2", "alice", 3, 0, 1, 2*time.Hour),
		post(types.PlatformX, "3", "bob", 40, 2, 0, 3*time.Hour),
		post(types.PlatformX, "4", "carol", 0, 0, 0, 4*time.Hour),
		post(types.PlatformBluesky, "at://did:plc:z/app.bsky.feed.post/a", "dan.bsky.social", 9, 1, 0, time.Hour),
		post(types.PlatformBluesky, "at://did:plc:z/app.bsky.feed.post/b", "dan.bsky.social", 1, 0, 0, 5*time.Hour),
		post(types.PlatformMastodon, "1099", "erin@mastodon.social", 2, 2, 2, 30*time.Minute),
	}
}

func TestCompareTotalOrder(t *testing.T) {
	a := types.ScoredPost{Post: types.Post{ID: "a", Platform: types.PlatformX, CreatedAt: base}, EngagementScore: 10, NormalizedScore: 1.5}
	b := a
	b.ID = "b"

	b.NormalizedScore = 0.5
	assert.Negative(t, Compare(a, b), "higher normalized score ranks first")

	b.NormalizedScore = a.NormalizedScore
	b.EngagementScore = 5
	assert.Negative(t, Compare(a, b), "ties broken by engagement")

	b.EngagementScore = a.EngagementScore
	b.CreatedAt = base.Add(time.Minute)
	assert.Positive(t, Compare(a, b), "then by recency")

	b.CreatedAt = a.CreatedAt
	assert.Negative(t, Compare(a, b), "then by id")
	assert.Zero(t, Compare(a, a))
}

func TestBuildRanksAndGroups(t *testing.T) {
	d, err := Build(samplePosts(), Options{GeneratedAt: base})
	require.NoError(t, err)
	require.Len(t, d.Ranked, 7)

	for i := 1; i < len(d.Ranked); i++ {
		assert.LessOrEqual(t, Compare(d.Ranked[i-1], d.Ranked[i]), 0)
	}

	// Groups follow their best post; within a group posts keep rank order
	seen := 0
	for _, g := range d.Groups {
		seen += len(g.Posts)
		for _, p := range g.Posts {
			assert.Equal(t, g.AuthorHandle, p.AuthorHandle)
			assert.Equal(t, g.Platform, p.Platform)
		}
		for i := 1; i < len(g.Posts); i++ {
			assert.LessOrEqual(t, Compare(g.Posts[i-1], g.Posts[i]), 0)
		}
	}
	assert.Equal(t, 7, seen)

	for i := 1; i < len(d.Groups); i++ {
		assert.LessOrEqual(t, Compare(d.Groups[i-1].Posts[0], d.Groups[i].Posts[0]), 0)
	}

	assert.Equal(t, d.Ranked, d.Intel)
	assert.False(t, d.Truncated())
}

func TestBuildIsDeterministic(t *testing.T) {
	posts := samplePosts()
	reversed := make([]types.Post, len(posts))
	for i, p := range posts {
		reversed[len(posts)-1-i] = p
	}

	d1, err := Build(posts, Options{GeneratedAt: base})
	require.NoError(t, err)
	d2, err := Build(reversed, Options{GeneratedAt: base})
	require.NoError(t, err)

	assert.Equal(t, Render(d1), Render(d2))
}

func TestBuildRejectsDuplicates(t *testing.T) {
	posts := append(samplePosts(), post(types.PlatformX, "1", "alice", 0, 0, 0, 0))
	_, err := Build(posts, Options{})
	assert.Error(t, err)
}

func TestIntelLimitTruncatesInsideSections(t *testing.T) {
	posts := samplePosts()

	for limit := 1; limit <= len(posts); limit++ {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			d, err := Build(posts, Options{IntelLimit: limit, GeneratedAt: base})
			require.NoError(t, err)
			require.Len(t, d.Intel, limit)
			assert.Equal(t, d.Ranked[:limit], d.Intel)

			count := 0
			for _, g := range d.IntelGroups {
				count += len(g.Posts)
			}
			assert.Equal(t, limit, count)

			parsed, err := Parse(RenderIntel(d))
			require.NoError(t, err)
			assert.Len(t, parsed, limit)
		})
	}
}

func TestIntelLimitSplitsAGroup(t *testing.T) {
	// alice has the top two posts on x; a limit of 1 must cut her section in half
	posts := []types.Post{
		post(types.PlatformX, "1", "alice", 100, 0, 0, 0),
		post(types.PlatformX, "2", "alice", 90, 0, 0, 0),
		post(types.PlatformX, "3", "bob", 1, 0, 0, 0),
	}
	d, err := Build(posts, Options{IntelLimit: 1, GeneratedAt: base})
	require.NoError(t, err)

	require.Len(t, d.IntelGroups, 1)
	require.Len(t, d.IntelGroups[0].Posts, 1)
	assert.Equal(t, "1", d.IntelGroups[0].Posts[0].ID)
	assert.Len(t, d.Groups[0].Posts, 2)
	assert.True(t, d.Truncated())
}

func TestIntelLimitLargerThanBatch(t *testing.T) {
	d, err := Build(samplePosts(), Options{IntelLimit: 100})
	require.NoError(t, err)
	assert.Len(t, d.Intel, 7)
}

func TestRoundTrip(t *testing.T) {
	posts := samplePosts()
	posts[0].Text = "multi\nline\n\n  indented and > quoted"
	posts[1].Text = ""
	posts[2].Text = "trailing newline\n"
	posts[3].CreatedAt = base.Add(-1234567 * time.Microsecond)
	posts[6].Likes = 12345

	d, err := Build(posts, Options{GeneratedAt: base})
	require.NoError(t, err)

	parsed, err := Parse(Render(d))
	require.NoError(t, err)
	require.Len(t, parsed, len(posts))

	want := make(map[types.Key]types.Post)
	for _, p := range posts {
		want[p.Key()] = p
	}
	for i, sp := range parsed {
		orig, ok := want[sp.Key()]
		require.True(t, ok, "unexpected post %v", sp.Key())
		assert.Equal(t, orig, sp.Post)
		assert.Equal(t, d.Ranked[i].EngagementScore, sp.EngagementScore)
		assert.InDelta(t, d.Ranked[i].NormalizedScore, sp.NormalizedScore, 1e-9)
	}

	// Rebuilding from parsed output reproduces the same digest
	rebuiltPosts := make([]types.Post, len(parsed))
	for i, sp := range parsed {
		rebuiltPosts[i] = sp.Post
	}
	rebuilt, err := Build(rebuiltPosts, Options{GeneratedAt: base})
	require.NoError(t, err)
	assert.Equal(t, Render(d), Render(rebuilt))
}

func TestRoundTripKeepsCarriageReturns(t *testing.T) {
	posts := samplePosts()
	posts[0].Text = "line one\r\nline two"
	posts[2].Text = "ends with CR\r"

	d, err := Build(posts, Options{GeneratedAt: base})
	require.NoError(t, err)

	parsed, err := Parse(Render(d))
	require.NoError(t, err)

	texts := make(map[string]string)
	for _, p := range parsed {
		texts[p.ID] = p.Text
	}
	assert.Equal(t, "line one\r\nline two", texts["1"])
	assert.Equal(t, "ends with CR\r", texts["3"])
	assert.Equal(t, "post 2", texts["2"])
}

func TestParseCRLFDocument(t *testing.T) {
	posts := samplePosts()
	posts[0].Text = "multi\nline"

	d, err := Build(posts, Options{GeneratedAt: base})
	require.NoError(t, err)

	want, err := Parse(Render(d))
	require.NoError(t, err)

	got, err := Parse(strings.ReplaceAll(Render(d), "\n", "\r\n"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRenderHeatMarker(t *testing.T) {
	posts := []types.Post{
		post(types.PlatformX, "hot", "alice", 50, 1, 0, 0), // 103
		post(types.PlatformX, "cold", "bob", 50, 0, 0, 0),   // 100
	}
	d, err := Build(posts, Options{GeneratedAt: base})
	require.NoError(t, err)

	out := Render(d)
	assert.Contains(t, out, "⚡ 103 🔥")
	assert.Contains(t, out, "⚡ 100  ·")
	assert.Contains(t, out, "(@alice) [x] 🔥 — 1 post\n")
	assert.Contains(t, out, "(@bob) [x] — 1 post\n")
}

func TestRenderEmpty(t *testing.T) {
	d, err := Build(nil, Options{GeneratedAt: base})
	require.NoError(t, err)
	assert.Contains(t, Render(d), "_No posts found")

	_, err = Parse(Render(d))
	var perr *ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestFormatCount(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 12345: "12,345", 1234567: "1,234,567"}
	for n, want := range tests {
		assert.Equal(t, want, formatCount(n))
	}
}

func TestParseErrors(t *testing.T) {
	stats := "> ❤️ 1  🔁 0  💬 0  ·  ⚡ 2  ·  🕐 2026-10-18T06:00:00Z  ·  🆔 1  ·  [View post](https://x.com/a/status/1)"

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"foreign markdown", "# Notes\n\nSome text\n\n- a list\n"},
		{"stats outside author section", "# Digest\n\n" + stats + "\n"},
		{"unterminated block", "## [x] @a — A\n\n> hello\n\n---\n"},
		{"block cut by next author", "## [x] @a — A\n\n> hello\n## [x] @b — B\n"},
		{"unknown platform", "## [myspace] @a — A\n\n> hi\n>\n" + stats + "\n"},
		{"engagement mismatch", "## [x] @a — A\n\n> hi\n>\n" + strings.Replace(stats, "⚡ 2", "⚡ 3", 1) + "\n"},
		{"bad timestamp", "## [x] @a — A\n\n> hi\n>\n" + strings.Replace(stats, "2026-10-18T06:00:00Z", "yesterday", 1) + "\n"},
		{"duplicate post", "## [x] @a — A\n\n>\n" + stats + "\n\n>\n" + stats + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			var perr *ParseError
			assert.True(t, errors.As(err, &perr), "want *ParseError, got %T", err)
		})
	}
}

func TestParseMinimal(t *testing.T) {
	text := "## [x] @a — Alice\n\n> hi\n>\n> ❤️ 1,000  🔁 0  💬 0  ·  ⚡ 2,000 🔥  ·  🕐 2026-10-18T06:00:00Z  ·  🆔 1  ·  [View post](https://x.com/a/status/1)\n"

	posts, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "hi", posts[0].Text)
	assert.Equal(t, 1000, posts[0].Likes)
	assert.Equal(t, 2000, posts[0].EngagementScore)
	assert.Equal(t, "Alice", posts[0].AuthorName)
	assert.Equal(t, 0.0, posts[0].NormalizedScore)
}
