// Package app wires the fetch, digest and synthesis stages into one run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/dailyintel/internal/config"
	"github.com/ibeckermayer/dailyintel/internal/digest"
	"github.com/ibeckermayer/dailyintel/internal/fetch"
	"github.com/ibeckermayer/dailyintel/internal/intel"
	"github.com/ibeckermayer/dailyintel/internal/llm"
	"github.com/ibeckermayer/dailyintel/internal/notifier"
	"github.com/ibeckermayer/dailyintel/internal/scheduler"
	"github.com/ibeckermayer/dailyintel/internal/store"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

const dateLayout = "2006-01-02"

// ErrSummaryNotFound means --from-summary pointed at a missing file
var ErrSummaryNotFound = errors.New("summary file not found")

// Deps are the collaborators of an App. Only Model is required; a nil Cache
// or Notifier disables caching or delivery.
type Deps struct {
	Fetchers []fetch.Fetcher
	Model    llm.Model
	Notifier *notifier.Notifier
	Cache    *store.Cache
}

// App holds one configured pipeline
type App struct {
	config   *config.Config
	fetchers []fetch.Fetcher
	model    llm.Model
	strategy intel.Strategy
	notifier *notifier.Notifier
	cache    *store.Cache

	// Now is the run clock
	Now func() time.Time
}

// New creates an App from explicit collaborators
func New(cfg *config.Config, deps Deps) (*App, error) {
	if deps.Model == nil {
		return nil, errors.New("app: a model is required")
	}

	model := llm.WithCache(deps.Model, deps.Cache)
	strategy, err := intel.New(cfg.Intel, model)
	if err != nil {
		return nil, err
	}
	if mr, ok := strategy.(*intel.MapReduce); ok && deps.Cache != nil {
		mr.OnClassified = func(posts []types.CategorizedPost) {
			if path, err := store.SaveStepOutput(deps.Cache, store.StepClassify, posts); err != nil {
				log.Printf("[app] Failed to cache classification: %v", err)
			} else {
				log.Printf("[app] Cached classification to: %s", path)
			}
		}
	}

	return &App{
		config:   cfg,
		fetchers: deps.Fetchers,
		model:    model,
		strategy: strategy,
		notifier: deps.Notifier,
		cache:    deps.Cache,
		Now:      time.Now,
	}, nil
}

// NewFromConfig builds every collaborator from cfg
func NewFromConfig(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	model, err := llm.New(cfg.Intel)
	if err != nil {
		return nil, err
	}

	n, err := notifier.NewFromConfig(cfg.Delivery)
	if err != nil {
		return nil, err
	}

	var cache *store.Cache
	if cfg.Output.Cache {
		dir := cfg.Output.CacheDir
		if dir == "" {
			if dir, err = config.CacheDir(); err != nil {
				return nil, err
			}
		}
		cache = store.New(dir)
	}

	return New(cfg, Deps{
		Fetchers: fetch.FromConfig(cfg, &http.Client{Timeout: 30 * time.Second}),
		Model:    model,
		Notifier: n,
		Cache:    cache,
	})
}

// Config returns the configuration the app was built with
func (a *App) Config() *config.Config { return a.config }

// Cache returns the debug cache, nil when caching is off
func (a *App) Cache() *store.Cache { return a.cache }

// RunOptions selects where a run's posts come from
type RunOptions struct {
	// FromSummary reuses a previously written digest instead of fetching.
	// An empty SummaryPath means today's summary in the output directory.
	FromSummary bool
	SummaryPath string

	// Posts, when set, are used instead of fetching
	Posts []types.Post

	Deliver bool
}

// Result describes a finished run
type Result struct {
	RunID       string
	SummaryPath string
	ReportPath  string
	Report      string
	Posts       int
	IntelPosts  int
}

// Run executes the pipeline once: collect posts, write the ranked summary,
// synthesize the report and write it, then deliver it when asked.
func (a *App) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	now := a.Now().UTC()
	res := &Result{RunID: uuid.NewString()}
	log.Printf("[app] Run %s started (strategy %s, model %s/%s)",
		res.RunID, a.strategy.Name(), a.model.Provider(), a.model.Name())

	if err := intel.Preflight(ctx, a.model); err != nil {
		return nil, err
	}

	outDir := a.config.Output.Dir
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	d, summaryPath, err := a.buildDigest(ctx, opts, now)
	if err != nil {
		return nil, err
	}
	res.SummaryPath = summaryPath
	res.Posts = len(d.Ranked)
	res.IntelPosts = len(d.Intel)

	intelText := digest.RenderIntel(d)
	if d.Truncated() {
		log.Printf("[digest] Intel input capped at %d of %d posts", len(d.Intel), len(d.Ranked))
	}
	a.cacheText(store.StepDigest, intelText)

	report, err := a.strategy.Synthesize(ctx, intel.Input{Text: intelText, Posts: d.Intel, GeneratedAt: now})
	if err != nil {
		return res, fmt.Errorf("synthesis: %w", err)
	}
	res.Report = report
	a.cacheText(store.StepReport, report)

	res.ReportPath = ReportPath(outDir, now)
	if err := os.WriteFile(res.ReportPath, []byte(report), 0644); err != nil {
		return res, fmt.Errorf("failed to write report: %w", err)
	}
	log.Printf("[app] Intel report saved -> %s", res.ReportPath)

	if opts.Deliver && a.notifier == nil {
		log.Printf("[deliver] No delivery method configured, report not sent")
	} else if opts.Deliver {
		subject := fmt.Sprintf("Global Situation Report: %s", now.Format("January 2, 2006"))
		if err := a.notifier.SendReport(ctx, subject, report); err != nil {
			return res, err
		}
	}

	return res, nil
}

// buildDigest produces the run's digest and the path of its summary file
func (a *App) buildDigest(ctx context.Context, opts RunOptions, now time.Time) (*digest.Digest, string, error) {
	buildOpts := digest.Options{IntelLimit: a.config.Intel.IntelLimit, GeneratedAt: now}

	if opts.FromSummary {
		path := opts.SummaryPath
		if path == "" {
			path = SummaryPath(a.config.Output.Dir, now)
		}
		posts, err := LoadSummary(path)
		if err != nil {
			return nil, "", err
		}
		log.Printf("[app] Loaded existing summary -> %s (%d posts)", path, len(posts))

		d, err := digest.Build(posts, buildOpts)
		if err != nil {
			return nil, "", err
		}
		return d, path, nil
	}

	posts := opts.Posts
	if len(posts) == 0 {
		window := fetch.Window{Hours: a.config.Fetch.Hours, Limit: a.config.Fetch.Limit}
		var err error
		posts, err = fetch.Collect(ctx, a.fetchers, a.config.Fetch.Sources, window)
		if err != nil {
			return nil, "", err
		}
		if path, err := store.SaveStepOutput(a.cache, store.StepPosts, posts); err != nil {
			log.Printf("[app] Failed to cache posts: %v", err)
		} else if path != "" {
			log.Printf("[app] Cached posts to: %s", path)
		}
	}

	d, err := digest.Build(posts, buildOpts)
	if err != nil {
		return nil, "", err
	}

	path := SummaryPath(a.config.Output.Dir, now)
	if err := os.WriteFile(path, []byte(digest.Render(d)), 0644); err != nil {
		return nil, "", fmt.Errorf("failed to write summary: %w", err)
	}
	log.Printf("[app] Summary saved -> %s (%d posts)", path, len(d.Ranked))
	return d, path, nil
}

// LoadSummary reads a summary file back into posts
func LoadSummary(path string) ([]types.Post, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSummaryNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	scored, err := digest.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	posts := make([]types.Post, len(scored))
	for i, p := range scored {
		posts[i] = p.Post
	}
	return posts, nil
}

func (a *App) cacheText(step store.StepName, text string) {
	if path, err := a.cache.SaveTextOutput(step, text, ".md"); err != nil {
		log.Printf("[app] Failed to cache %s: %v", step, err)
	} else if path != "" {
		log.Printf("[app] Cached %s to: %s", step, path)
	}
}

// SummaryPath is the ranked digest file for the day of t
func SummaryPath(dir string, t time.Time) string {
	return filepath.Join(dir, "summary_"+t.UTC().Format(dateLayout)+".md")
}

// ReportPath is the intel report file for the day of t
func ReportPath(dir string, t time.Time) string {
	return filepath.Join(dir, "intel_report_"+t.UTC().Format(dateLayout)+".md")
}

// Schedule runs the pipeline every day at the configured time until ctx is
// cancelled
func (a *App) Schedule(ctx context.Context, opts RunOptions) error {
	s, err := scheduler.New(a.config.Schedule.Timezone)
	if err != nil {
		return err
	}

	err = s.AddDailyJob("briefing", a.config.Schedule.DailyAt, func(ctx context.Context) error {
		res, err := a.Run(ctx, opts)
		if err != nil {
			return err
		}
		log.Printf("[app] Run %s wrote %s", res.RunID, res.ReportPath)
		return nil
	})
	if err != nil {
		return err
	}

	s.Start()
	for _, job := range s.ListJobs() {
		log.Printf("[scheduler] %s next runs at %s", job.Name, job.NextRun.Format(time.RFC1123))
	}

	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}
