// Package config loads settings from a TOML or YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ibeckermayer/dailyintel/internal/retry"
)

// Synthesis strategies
const (
	BackendCloud = "cloud" // single-shot against a remote model
	BackendLocal = "local" // map-reduce against a small local model
)

// Model providers
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// Post classifiers for the local backend
const (
	ClassifierLLM       = "llm"       // batched prompts to the synthesis model
	ClassifierEmbedding = "embedding" // nearest category anchor by embedding
)

// Delivery methods
const (
	DeliveryNone     = ""
	DeliveryEmail    = "email"
	DeliveryTelegram = "telegram"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version" yaml:"version"`
	Fetch    FetchConfig    `toml:"fetch" yaml:"fetch"`
	X        XConfig        `toml:"x" yaml:"x"`
	Bluesky  BlueskyConfig  `toml:"bluesky" yaml:"bluesky"`
	Mastodon MastodonConfig `toml:"mastodon" yaml:"mastodon"`
	Intel    IntelConfig    `toml:"intel" yaml:"intel"`
	Output   OutputConfig   `toml:"output" yaml:"output"`
	Schedule ScheduleConfig `toml:"schedule" yaml:"schedule"`
	Delivery DeliveryConfig `toml:"delivery" yaml:"delivery"`
}

type FetchConfig struct {
	// Sources is any of "x", "bluesky", "mastodon", or "all"
	Sources []string `toml:"sources" yaml:"sources"`
	Hours   int      `toml:"hours" yaml:"hours"`
	// Limit caps posts per platform; 0 means the whole window
	Limit int `toml:"limit" yaml:"limit"`
}

type XConfig struct {
	Enabled  bool `toml:"enabled" yaml:"enabled"`
	Headless bool `toml:"headless" yaml:"headless"`
	// MaxScrolls bounds how far down the timeline the scraper goes
	MaxScrolls int `toml:"max_scrolls" yaml:"max_scrolls"`
}

type BlueskyConfig struct {
	Host        string `toml:"host" yaml:"host"`
	Handle      string `toml:"handle" yaml:"handle"`
	AppPassword string `toml:"app_password" yaml:"app_password"`
}

type MastodonConfig struct {
	BaseURL     string `toml:"base_url" yaml:"base_url"`
	AccessToken string `toml:"access_token" yaml:"access_token"`
}

type IntelConfig struct {
	Backend  string `toml:"backend" yaml:"backend"`
	Provider string `toml:"provider" yaml:"provider"`
	Model    string `toml:"model" yaml:"model"`
	APIKey   string `toml:"api_key" yaml:"api_key"`
	BaseURL  string `toml:"base_url" yaml:"base_url"`

	// IntelLimit caps the posts sent to the model; 0 means all
	IntelLimit       int      `toml:"intel_limit" yaml:"intel_limit"`
	TopK             int      `toml:"top_k" yaml:"top_k"`
	BatchSize        int      `toml:"batch_size" yaml:"batch_size"`
	Concurrency      int      `toml:"concurrency" yaml:"concurrency"`
	ExecutiveSummary bool     `toml:"executive_summary" yaml:"executive_summary"`
	MaxTokens        int      `toml:"max_tokens" yaml:"max_tokens"`
	Timeout          string   `toml:"timeout" yaml:"timeout"`
	Taxonomy         []string `toml:"taxonomy" yaml:"taxonomy"`

	// Classifier picks how the local backend labels posts
	Classifier string `toml:"classifier" yaml:"classifier"`
	EmbedModel string `toml:"embed_model" yaml:"embed_model"`
	// EmbedURL defaults to BaseURL when the provider is ollama
	EmbedURL string `toml:"embed_url" yaml:"embed_url"`

	Retry RetryConfig `toml:"retry" yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int     `toml:"max_attempts" yaml:"max_attempts"`
	BaseDelay   string  `toml:"base_delay" yaml:"base_delay"`
	MaxDelay    string  `toml:"max_delay" yaml:"max_delay"`
	Multiplier  float64 `toml:"multiplier" yaml:"multiplier"`
	Jitter      float64 `toml:"jitter" yaml:"jitter"`
}

type OutputConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
	// Cache keeps fetched posts and model exchanges for debugging
	Cache    bool   `toml:"cache" yaml:"cache"`
	CacheDir string `toml:"cache_dir" yaml:"cache_dir"`
}

type ScheduleConfig struct {
	DailyAt  string `toml:"daily_at" yaml:"daily_at"`
	Timezone string `toml:"timezone" yaml:"timezone"`
}

type DeliveryConfig struct {
	Method   string         `toml:"method" yaml:"method"`
	Email    EmailConfig    `toml:"email" yaml:"email"`
	Telegram TelegramConfig `toml:"telegram" yaml:"telegram"`
}

type EmailConfig struct {
	SMTPHost string `toml:"smtp_host" yaml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port" yaml:"smtp_port"`
	SMTPUser string `toml:"smtp_user" yaml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass" yaml:"smtp_pass"`
	FromAddr string `toml:"from_address" yaml:"from_address"`
	ToAddr   string `toml:"to_address" yaml:"to_address"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token" yaml:"bot_token"`
	ChatID   int64  `toml:"chat_id" yaml:"chat_id"`
}

// DefaultTaxonomy is the closed label set used by the local backend
var DefaultTaxonomy = []string{
	"Geopolitics & Security",
	"Economics & Markets",
	"AI & Technology",
	"Health & Science",
	"Sports & Performance",
	"Society & Culture",
}

// defaultModels is the model a provider starts with when a backend switch
// selects it
var defaultModels = map[string]string{
	ProviderGemini: "gemini-flash-latest",
	ProviderOllama: "mistral",
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Fetch: FetchConfig{
			Sources: []string{"all"},
			Hours:   24,
		},
		X: XConfig{
			Enabled:    true,
			Headless:   true,
			MaxScrolls: 30,
		},
		Bluesky: BlueskyConfig{
			Host: "https://bsky.social",
		},
		Intel: IntelConfig{
			Backend:          BackendCloud,
			Provider:         ProviderGemini,
			Model:            defaultModels[ProviderGemini],
			TopK:             10,
			BatchSize:        10,
			Concurrency:      1,
			ExecutiveSummary: true,
			MaxTokens:        8192,
			Timeout:          "300s",
			Taxonomy:         append([]string(nil), DefaultTaxonomy...),
			Classifier:       ClassifierLLM,
			EmbedModel:       "nomic-embed-text",
			Retry: RetryConfig{
				MaxAttempts: 5,
				BaseDelay:   "4s",
				MaxDelay:    "60s",
				Multiplier:  2,
			},
		},
		Output: OutputConfig{
			Dir:   "summaries",
			Cache: false,
		},
		Schedule: ScheduleConfig{
			DailyAt:  "07:00",
			Timezone: "UTC",
		},
		Delivery: DeliveryConfig{
			Email: EmailConfig{
				SMTPPort: 587,
			},
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "dailyintel"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "dailyintel"), nil
}

// Load reads config from the default path. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.ApplyEnv(os.Getenv)
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads config from path on top of the defaults. Files ending in
// .yaml or .yml are decoded as YAML, everything else as TOML.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// LoadDotEnv loads credentials from .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
		if dir, err := ConfigDir(); err == nil {
			paths = append(paths, filepath.Join(dir, ".env"))
		}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables on the config. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	if v := strings.TrimSpace(getenv("INTEL_BACKEND")); v != "" {
		c.Intel.SetBackend(v)
	}
	set(&c.Intel.Provider, "INTEL_PROVIDER")
	c.ApplyProviderEnv(getenv)

	if v := strings.TrimSpace(getenv("OLLAMA_TOP_PER_CATEGORY")); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Intel.TopK = n
		}
	}
	set(&c.Intel.Classifier, "INTEL_CLASSIFIER")
	set(&c.Intel.EmbedModel, "OLLAMA_EMBED_MODEL")
	set(&c.Intel.EmbedURL, "OLLAMA_EMBED_URL")

	set(&c.Bluesky.Handle, "BSKY_HANDLE")
	set(&c.Bluesky.AppPassword, "BSKY_APP_PASSWORD")
	set(&c.Mastodon.BaseURL, "MASTODON_API_BASE_URL")
	set(&c.Mastodon.AccessToken, "MASTODON_ACCESS_TOKEN")
	set(&c.Output.Dir, "DAILYINTEL_OUTPUT_DIR")
	set(&c.Delivery.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
}

// ApplyProviderEnv overlays the variables that depend on the selected
// provider: the model, its credentials and its endpoint. Call it again after
// changing the provider so the new provider's variables take effect.
func (c *Config) ApplyProviderEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.Intel.Model, "INTEL_MODEL")

	switch c.Intel.Provider {
	case ProviderAnthropic:
		set(&c.Intel.APIKey, "INTEL_API_KEY", "ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		set(&c.Intel.APIKey, "INTEL_API_KEY", "OPENAI_API_KEY")
		set(&c.Intel.BaseURL, "OPENAI_BASE_URL")
	case ProviderGemini:
		set(&c.Intel.APIKey, "INTEL_API_KEY", "GEMINI_API_KEY")
		set(&c.Intel.Model, "GEMINI_MODEL")
	case ProviderOllama:
		set(&c.Intel.BaseURL, "OLLAMA_URL")
		set(&c.Intel.Model, "OLLAMA_MODEL")
	default:
		set(&c.Intel.APIKey, "INTEL_API_KEY")
	}
}

// Validate reports configuration problems that would stop a run
func (c *Config) Validate() error {
	if c.Fetch.Hours <= 0 {
		return fmt.Errorf("fetch.hours must be positive, got %d", c.Fetch.Hours)
	}
	if c.Fetch.Limit < 0 {
		return fmt.Errorf("fetch.limit must not be negative, got %d", c.Fetch.Limit)
	}
	if err := c.Intel.Validate(); err != nil {
		return err
	}
	if _, err := c.Schedule.Location(); err != nil {
		return err
	}
	switch c.Delivery.Method {
	case DeliveryNone, DeliveryEmail, DeliveryTelegram:
	default:
		return fmt.Errorf("unknown delivery method: %q", c.Delivery.Method)
	}
	return nil
}

// SetBackend selects the synthesis backend. The provider names "ollama" and
// "gemini" are accepted as aliases for the local and cloud backends. When
// the alias changes the provider, the previous provider's model, key and
// endpoint are dropped and the model falls back to the new provider's
// default.
func (i *IntelConfig) SetBackend(v string) {
	switch v = strings.ToLower(strings.TrimSpace(v)); v {
	case ProviderOllama:
		i.Backend = BackendLocal
		i.setProvider(ProviderOllama)
	case ProviderGemini:
		i.Backend = BackendCloud
		i.setProvider(ProviderGemini)
	default:
		i.Backend = v
	}
}

func (i *IntelConfig) setProvider(p string) {
	if i.Provider == p {
		return
	}
	i.Provider = p
	i.Model = defaultModels[p]
	i.APIKey = ""
	i.BaseURL = ""
}

// Validate checks the synthesis settings
func (i IntelConfig) Validate() error {
	switch i.Backend {
	case BackendCloud, BackendLocal:
	default:
		return fmt.Errorf("unknown intel backend: %q (want %q or %q)", i.Backend, BackendCloud, BackendLocal)
	}
	switch i.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
		if i.APIKey == "" {
			return fmt.Errorf("intel.api_key is required for provider %s", i.Provider)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unknown intel provider: %q", i.Provider)
	}
	if i.Model == "" {
		return fmt.Errorf("intel.model is required")
	}
	if i.IntelLimit < 0 {
		return fmt.Errorf("intel.intel_limit must not be negative, got %d", i.IntelLimit)
	}
	if i.Backend == BackendLocal && len(i.Taxonomy) == 0 {
		return fmt.Errorf("intel.taxonomy must not be empty for the local backend")
	}
	switch i.Classifier {
	case "", ClassifierLLM, ClassifierEmbedding:
	default:
		return fmt.Errorf("unknown intel classifier: %q (want %q or %q)", i.Classifier, ClassifierLLM, ClassifierEmbedding)
	}
	if _, err := i.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := i.RetryPolicy(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration is the per-request model timeout
func (i IntelConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("intel.timeout", i.Timeout, 300*time.Second)
}

// RetryPolicy resolves the retry settings. The Retryable predicate is left
// for the caller, which knows its error types.
func (i IntelConfig) RetryPolicy() (retry.Policy, error) {
	p := retry.Default()
	r := i.Retry

	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	base, err := parseDuration("intel.retry.base_delay", r.BaseDelay, p.BaseDelay)
	if err != nil {
		return retry.Policy{}, err
	}
	maxDelay, err := parseDuration("intel.retry.max_delay", r.MaxDelay, p.MaxDelay)
	if err != nil {
		return retry.Policy{}, err
	}
	p.BaseDelay, p.MaxDelay = base, maxDelay
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	p.Jitter = r.Jitter
	return p, nil
}

// Location resolves the schedule timezone
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule.timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, s)
	}
	return d, nil
}
