package digest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ibeckermayer/dailyintel/internal/scoring"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// ParseError reports a digest that cannot be converted back into posts
type ParseError struct {
	Line   int // 1-based, 0 when the error is not tied to a line
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse digest: line %d: %s", e.Line, e.Reason)
	}
	return "parse digest: " + e.Reason
}

var (
	authorHeaderRe = regexp.MustCompile(`^## \[([^\]]+)\] @(\S+) — (.*)$`)
	statsLineRe    = regexp.MustCompile(`^> ❤️ ([\d,]+)  🔁 ([\d,]+)  💬 ([\d,]+)  ·  ⚡ ([\d,]+)(?: 🔥)?  ·  🕐 (\S+)  ·  🆔 (\S+)  ·  \[View post\]\((.*)\)$`)
)

type author struct {
	platform types.Platform
	handle   string
	name     string
}

// Parse reconstructs scored posts from a digest produced by Render or
// RenderIntel. Posts are returned in document order.
func Parse(text string) ([]types.ScoredPost, error) {
	var (
		posts   []types.Post
		current *author
		block   []string
		start   int
	)

	// A digest saved with CRLF line endings is read as LF. Otherwise a "\r"
	// before a newline belongs to the post text and is kept.
	if n := strings.Count(text, "\n"); n > 0 && strings.Count(text, "\r\n") == n {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}

	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		line := strings.TrimSuffix(raw, "\r")

		if m := authorHeaderRe.FindStringSubmatch(line); m != nil {
			if len(block) > 0 {
				return nil, &ParseError{Line: start, Reason: "post block has no stats line"}
			}
			platform, err := types.ParsePlatform(m[1])
			if err != nil {
				return nil, &ParseError{Line: lineNo, Reason: err.Error()}
			}
			current = &author{platform: platform, handle: m[2], name: m[3]}
			continue
		}

		if strings.HasPrefix(line, "## ") {
			if len(block) > 0 {
				return nil, &ParseError{Line: start, Reason: "post block has no stats line"}
			}
			current = nil
			continue
		}

		isQuote := line == ">" || strings.HasPrefix(line, "> ")
		if current == nil {
			if statsLineRe.MatchString(line) {
				return nil, &ParseError{Line: lineNo, Reason: "post outside an author section"}
			}
			continue
		}

		if !isQuote {
			if len(block) > 0 {
				return nil, &ParseError{Line: start, Reason: "post block has no stats line"}
			}
			continue
		}

		if m := statsLineRe.FindStringSubmatch(line); m != nil {
			p, err := buildPost(current, block, m)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Reason: err.Error()}
			}
			posts = append(posts, p)
			block = nil
			continue
		}

		if len(block) == 0 {
			start = lineNo
		}
		block = append(block, raw)
	}

	if len(block) > 0 {
		return nil, &ParseError{Line: start, Reason: "post block has no stats line"}
	}
	if len(posts) == 0 {
		return nil, &ParseError{Reason: "no posts found"}
	}

	seen := make(map[types.Key]int)
	for i, p := range posts {
		if j, ok := seen[p.Key()]; ok {
			return nil, &ParseError{Reason: fmt.Sprintf("post %s/%s appears twice (entries %d and %d)", p.Platform, p.ID, j+1, i+1)}
		}
		seen[p.Key()] = i
	}

	return scoring.Normalize(posts), nil
}

func buildPost(a *author, block []string, m []string) (types.Post, error) {
	// The bare ">" line separates the text from the stats line
	if n := len(block); n > 0 && strings.TrimSuffix(block[n-1], "\r") == ">" {
		block = block[:n-1]
	}
	textLines := make([]string, len(block))
	for i, l := range block {
		textLines[i] = strings.TrimPrefix(strings.TrimPrefix(l, ">"), " ")
	}

	counts := make([]int, 4)
	for i := range counts {
		n, err := strconv.Atoi(strings.ReplaceAll(m[i+1], ",", ""))
		if err != nil {
			return types.Post{}, fmt.Errorf("bad count %q: %w", m[i+1], err)
		}
		counts[i] = n
	}

	createdAt, err := time.Parse(timeLayout, m[5])
	if err != nil {
		return types.Post{}, fmt.Errorf("bad timestamp %q: %w", m[5], err)
	}

	p, err := types.NewPost(types.Post{
		ID:           m[6],
		Platform:     a.platform,
		Text:         strings.Join(textLines, "\n"),
		CreatedAt:    createdAt,
		AuthorName:   a.name,
		AuthorHandle: a.handle,
		Likes:        counts[0],
		Reposts:      counts[1],
		Replies:      counts[2],
		URL:          m[7],
	})
	if err != nil {
		return types.Post{}, err
	}

	if got := scoring.Engagement(p); got != counts[3] {
		return types.Post{}, fmt.Errorf("post %s: engagement %d does not match counts (expected %d)", p.ID, counts[3], got)
	}
	return p, nil
}
