package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ibeckermayer/dailyintel/internal/config"
	"github.com/ibeckermayer/dailyintel/internal/retry"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

const (
	DefaultBlueskyHost = "https://bsky.social"
	blueskyPageSize    = 100
)

// Bluesky reads the Following timeline through the AT Protocol XRPC API
type Bluesky struct {
	host     string
	handle   string
	password string
	client   *http.Client

	Policy retry.Policy
	Now    func() time.Time
}

func NewBluesky(cfg config.BlueskyConfig, client *http.Client) *Bluesky {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = DefaultBlueskyHost
	}
	return &Bluesky{
		host:     host,
		handle:   cfg.Handle,
		password: cfg.AppPassword,
		client:   client,
		Now:      time.Now,
	}
}

func (b *Bluesky) Platform() types.Platform { return types.PlatformBluesky }

func (b *Bluesky) Configured() bool { return b.handle != "" && b.password != "" }

// Fetch logs in with the app password and pages through the timeline until
// the window is covered
func (b *Bluesky) Fetch(ctx context.Context, w Window) ([]types.Post, error) {
	token, err := b.createSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("bluesky login: %w", err)
	}

	cutoff := w.Cutoff(b.Now())
	seen := make(map[string]bool)
	var posts []types.Post
	cursor := ""

	for page := 1; ; page++ {
		body, err := b.timelinePage(ctx, token, cursor)
		if err != nil {
			return nil, fmt.Errorf("bluesky timeline page %d: %w", page, err)
		}

		feed := gjson.GetBytes(body, "feed").Array()
		var oldest time.Time
		for _, item := range feed {
			p, err := blueskyPost(item.Get("post"))
			if err != nil {
				log.Printf("[fetch-bluesky] Skipping post: %v", err)
				continue
			}
			oldest = p.CreatedAt
			// A repost brings the same post back into the feed
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			posts = append(posts, p)
		}

		cursor = gjson.GetBytes(body, "cursor").String()
		if cursor == "" || len(feed) == 0 {
			break
		}
		if w.Limit > 0 && len(posts) >= w.Limit {
			break
		}
		if w.Limit <= 0 && !oldest.IsZero() && oldest.Before(cutoff) {
			break
		}
	}

	newestFirst(posts)
	posts = trimWindow(posts, w, cutoff)
	log.Printf("[fetch-bluesky] Retrieved %d posts", len(posts))
	return posts, nil
}

func (b *Bluesky) createSession(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"identifier": b.handle,
		"password":   b.password,
	})
	if err != nil {
		return "", err
	}

	body, err := do(ctx, b.client, b.Policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			b.host+"/xrpc/com.atproto.server.createSession", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	token := gjson.GetBytes(body, "accessJwt").String()
	if token == "" {
		return "", errors.New("createSession returned no access token")
	}
	return token, nil
}

func (b *Bluesky) timelinePage(ctx context.Context, token, cursor string) ([]byte, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(blueskyPageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := b.host + "/xrpc/app.bsky.feed.getTimeline?" + q.Encode()

	return do(ctx, b.client, b.Policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
}

// blueskyPost converts an app.bsky.feed.defs#postView. The record is an
// open union, so fields are read by path.
func blueskyPost(v gjson.Result) (types.Post, error) {
	uri := v.Get("uri").String()
	handle := v.Get("author.handle").String()

	created, err := time.Parse(time.RFC3339, v.Get("record.createdAt").String())
	if err != nil {
		// Malformed record timestamps fall back to the index time
		created, err = time.Parse(time.RFC3339, v.Get("indexedAt").String())
		if err != nil {
			return types.Post{}, fmt.Errorf("%s: no usable timestamp", uri)
		}
	}

	return types.NewPost(types.Post{
		ID:           uri,
		Platform:     types.PlatformBluesky,
		Text:         v.Get("record.text").String(),
		CreatedAt:    created,
		AuthorName:   v.Get("author.displayName").String(),
		AuthorHandle: handle,
		Likes:        int(v.Get("likeCount").Int()),
		Reposts:      int(v.Get("repostCount").Int()),
		Replies:      int(v.Get("replyCount").Int()),
		URL:          blueskyURL(handle, uri),
	})
}

// blueskyURL links to a post on the web app, keyed by the record key at the
// end of its at:// URI
func blueskyURL(handle, uri string) string {
	rkey := uri[strings.LastIndex(uri, "/")+1:]
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey)
}
