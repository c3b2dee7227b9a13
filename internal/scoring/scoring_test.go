package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/dailyintel/internal/types"
)

func TestEngagement(t *testing.T) {
	tests := []struct {
		name                    string
		likes, reposts, replies int
		want                    int
	}{
		{"single x post", 10, 5, 2, 37},
		{"zero", 0, 0, 0, 0},
		{"likes only", 50, 0, 0, 100},
		{"reposts only", 0, 7, 0, 21},
		{"replies only", 0, 0, 9, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := types.Post{Likes: tt.likes, Reposts: tt.reposts, Replies: tt.replies}
			assert.Equal(t, tt.want, Engagement(p))
		})
	}
}

func TestIsHot(t *testing.T) {
	assert.False(t, IsHot(100))
	assert.True(t, IsHot(101))
	assert.False(t, IsHot(0))
}

func TestNormalizeTwoPlatforms(t *testing.T) {
	posts := []types.Post{
		{ID: "x1", Platform: types.PlatformX, Likes: 10, Reposts: 5, Replies: 2}, // 37
		{ID: "b1", Platform: types.PlatformBluesky, Likes: 1, Reposts: 1},         // 5
		{ID: "x2", Platform: types.PlatformX, Likes: 5},                            // 10
	}

	scored := Normalize(posts)
	require.Len(t, scored, 3)

	assert.Equal(t, 37, scored[0].EngagementScore)
	assert.Equal(t, 5, scored[1].EngagementScore)
	assert.Equal(t, 10, scored[2].EngagementScore)

	assert.Equal(t, 0.0, scored[1].NormalizedScore)
	assert.InDelta(t, 1.0, scored[0].NormalizedScore, 1e-9)
	assert.InDelta(t, -1.0, scored[2].NormalizedScore, 1e-9)
	assert.InDelta(t, 0.0, scored[0].NormalizedScore+scored[2].NormalizedScore, 1e-9)
}

func TestNormalizeZeroVariance(t *testing.T) {
	posts := []types.Post{
		{ID: "1", Platform: types.PlatformMastodon, Likes: 3},
		{ID: "2", Platform: types.PlatformMastodon, Likes: 3},
		{ID: "3", Platform: types.PlatformMastodon, Likes: 3},
	}

	for _, sp := range Normalize(posts) {
		assert.Equal(t, 0.0, sp.NormalizedScore)
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	posts := []types.Post{{ID: "1", Platform: types.PlatformX, Likes: 3}}
	before := posts[0]

	Normalize(posts)
	assert.Equal(t, before, posts[0])
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Empty(t, Normalize(nil))
}
