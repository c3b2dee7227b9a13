// Package scoring computes engagement scores and cross-platform z-scores.
package scoring

import (
	"math"

	"github.com/ibeckermayer/dailyintel/internal/types"
)

// Engagement weights. A repost counts more than a like, a reply less.
const (
	LikeWeight   = 2
	RepostWeight = 3
	ReplyWeight  = 1
)

// HeatThreshold is the raw engagement score a post must exceed to be flagged hot
const HeatThreshold = 100

// Engagement returns the weighted engagement score of a post
func Engagement(p types.Post) int {
	return p.Likes*LikeWeight + p.Reposts*RepostWeight + p.Replies*ReplyWeight
}

// IsHot reports whether a raw engagement score earns the heat marker
func IsHot(score int) bool {
	return score > HeatThreshold
}

// Normalize scores every post and attaches a per-platform z-score.
// The result has the same order as posts. A platform whose scores have zero
// variance gets 0 for all of its posts.
func Normalize(posts []types.Post) []types.ScoredPost {
	scored := make([]types.ScoredPost, len(posts))
	byPlatform := make(map[types.Platform][]int)

	for i, p := range posts {
		scored[i] = types.ScoredPost{Post: p, EngagementScore: Engagement(p)}
		byPlatform[p.Platform] = append(byPlatform[p.Platform], i)
	}

	for _, idxs := range byPlatform {
		mean, std := meanStd(scored, idxs)
		for _, i := range idxs {
			if std == 0 {
				scored[i].NormalizedScore = 0
				continue
			}
			scored[i].NormalizedScore = (float64(scored[i].EngagementScore) - mean) / std
		}
	}

	return scored
}

// meanStd returns the mean and population standard deviation of the
// engagement scores at idxs
func meanStd(scored []types.ScoredPost, idxs []int) (float64, float64) {
	var sum float64
	for _, i := range idxs {
		sum += float64(scored[i].EngagementScore)
	}
	mean := sum / float64(len(idxs))

	var variance float64
	for _, i := range idxs {
		d := float64(scored[i].EngagementScore) - mean
		variance += d * d
	}
	variance /= float64(len(idxs))

	return mean, math.Sqrt(variance)
}
