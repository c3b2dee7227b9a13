package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ibeckermayer/dailyintel/internal/scoring"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

const (
	heatMarker = "🔥"
	timeLayout = time.RFC3339Nano
)

// Render produces the full markdown digest
func Render(d *Digest) string {
	return render(d.GeneratedAt, d.Groups, len(d.Ranked), len(d.Ranked))
}

// RenderIntel produces the markdown for the intel subset only, in the same
// format as Render
func RenderIntel(d *Digest) string {
	return render(d.GeneratedAt, d.IntelGroups, len(d.Intel), len(d.Ranked))
}

func render(generatedAt time.Time, groups []Group, included, total int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# 📰 Daily Digest — %s\n\n", generatedAt.Format("Monday, January 02 2006")))

	summary := fmt.Sprintf("**%d posts**", total)
	if included < total {
		summary = fmt.Sprintf("top **%d** of **%d posts**", included, total)
	}
	sb.WriteString(fmt.Sprintf("> Generated at **%s** · %s from %s\n\n",
		generatedAt.Format("15:04 UTC"), summary, platformList(groups)))
	sb.WriteString("---\n\n")

	if len(groups) == 0 {
		sb.WriteString("_No posts found in the past 24 hours._\n")
		return sb.String()
	}

	writeAuthorList(&sb, groups)
	for _, g := range groups {
		writeAuthorSection(&sb, g)
	}

	return sb.String()
}

func platformList(groups []Group) string {
	seen := make(map[types.Platform]bool)
	var names []string
	for _, platform := range types.Platforms {
		for _, g := range groups {
			if g.Platform == platform && !seen[platform] {
				seen[platform] = true
				names = append(names, string(platform))
			}
		}
	}
	if len(names) == 0 {
		return "no platforms"
	}
	return strings.Join(names, ", ")
}

func writeAuthorList(sb *strings.Builder, groups []Group) {
	sb.WriteString("## 📋 Authors in This Digest\n\n")
	for _, g := range groups {
		fire := ""
		if g.Hot() {
			fire = " " + heatMarker
		}
		plural := "s"
		if len(g.Posts) == 1 {
			plural = ""
		}
		sb.WriteString(fmt.Sprintf("- **%s** (@%s) [%s]%s — %d post%s\n",
			oneLine(g.AuthorName), g.AuthorHandle, g.Platform, fire, len(g.Posts), plural))
	}
	sb.WriteString("\n---\n\n")
}

func writeAuthorSection(sb *strings.Builder, g Group) {
	sb.WriteString(fmt.Sprintf("## [%s] @%s — %s\n\n", g.Platform, g.AuthorHandle, oneLine(g.AuthorName)))

	for _, p := range g.Posts {
		if p.Text != "" {
			for _, line := range strings.Split(p.Text, "\n") {
				sb.WriteString("> " + line + "\n")
			}
		}
		sb.WriteString(">\n")
		sb.WriteString("> " + statsLine(p) + "\n\n")
	}

	sb.WriteString("---\n\n")
}

func statsLine(p types.ScoredPost) string {
	fire := ""
	if scoring.IsHot(p.EngagementScore) {
		fire = " " + heatMarker
	}
	return fmt.Sprintf("❤️ %s  🔁 %s  💬 %s  ·  ⚡ %s%s  ·  🕐 %s  ·  🆔 %s  ·  [View post](%s)",
		formatCount(p.Likes), formatCount(p.Reposts), formatCount(p.Replies),
		formatCount(p.EngagementScore), fire,
		p.CreatedAt.UTC().Format(timeLayout), p.ID, p.URL)
}

// formatCount renders n with thousands separators
func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

// oneLine keeps a display name on its header line
func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
