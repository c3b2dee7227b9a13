package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/ibeckermayer/dailyintel/internal/config"
	"github.com/ibeckermayer/dailyintel/internal/retry"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// Mastodon caps home timeline pages at 40
const mastodonPageSize = 40

// Mastodon reads the home timeline of an instance's REST API
type Mastodon struct {
	baseURL   string
	token     string
	client    *http.Client
	converter *md.Converter

	Policy retry.Policy
	Now    func() time.Time
}

func NewMastodon(cfg config.MastodonConfig, client *http.Client) *Mastodon {
	return &Mastodon{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.AccessToken,
		client:    client,
		converter: md.NewConverter("", true, nil),
		Now:       time.Now,
	}
}

func (m *Mastodon) Platform() types.Platform { return types.PlatformMastodon }

func (m *Mastodon) Configured() bool { return m.baseURL != "" && m.token != "" }

type mastodonAccount struct {
	Acct        string `json:"acct"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type mastodonStatus struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	Content         string          `json:"content"`
	URL             string          `json:"url"`
	URI             string          `json:"uri"`
	Account         mastodonAccount `json:"account"`
	FavouritesCount int             `json:"favourites_count"`
	ReblogsCount    int             `json:"reblogs_count"`
	RepliesCount    int             `json:"replies_count"`
	Reblog          *mastodonStatus `json:"reblog"`
}

// Fetch pages backwards through the home timeline with max_id
func (m *Mastodon) Fetch(ctx context.Context, w Window) ([]types.Post, error) {
	cutoff := w.Cutoff(m.Now())
	seen := make(map[string]bool)
	var posts []types.Post
	maxID := ""

pages:
	for page := 1; ; page++ {
		batch, err := m.homePage(ctx, maxID)
		if err != nil {
			return nil, fmt.Errorf("mastodon timeline page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, s := range batch {
			if w.Limit > 0 && len(posts) >= w.Limit {
				break pages
			}
			if w.Limit <= 0 && s.CreatedAt.Before(cutoff) {
				break pages
			}

			p, err := m.toPost(s)
			if err != nil {
				log.Printf("[fetch-mastodon] Skipping status %s: %v", s.ID, err)
				continue
			}
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			posts = append(posts, p)
		}
		maxID = batch[len(batch)-1].ID
	}

	newestFirst(posts)
	posts = trimWindow(posts, w, cutoff)
	log.Printf("[fetch-mastodon] Retrieved %d posts", len(posts))
	return posts, nil
}

func (m *Mastodon) homePage(ctx context.Context, maxID string) ([]mastodonStatus, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(mastodonPageSize))
	if maxID != "" {
		q.Set("max_id", maxID)
	}
	endpoint := m.baseURL + "/api/v1/timelines/home?" + q.Encode()

	body, err := do(ctx, m.client, m.Policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+m.token)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var batch []mastodonStatus
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("decoding timeline: %w", err)
	}
	return batch, nil
}

// toPost converts a status. A boost is replaced by the status it boosts.
func (m *Mastodon) toPost(s mastodonStatus) (types.Post, error) {
	if s.Reblog != nil {
		s = *s.Reblog
	}

	text, err := m.converter.ConvertString(s.Content)
	if err != nil {
		return types.Post{}, fmt.Errorf("converting content: %w", err)
	}

	link := s.URL
	if link == "" {
		link = s.URI
	}
	name := s.Account.DisplayName
	if name == "" {
		name = s.Account.Username
	}

	return types.NewPost(types.Post{
		ID:           s.ID,
		Platform:     types.PlatformMastodon,
		Text:         strings.TrimSpace(text),
		CreatedAt:    s.CreatedAt,
		AuthorName:   name,
		AuthorHandle: s.Account.Acct,
		Likes:        s.FavouritesCount,
		Reposts:      s.ReblogsCount,
		Replies:      s.RepliesCount,
		URL:          link,
	})
}
