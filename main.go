// Command dailyintel collects the day's posts from X, Bluesky and Mastodon,
// ranks them into a digest and writes an intelligence report from it.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/dailyintel/internal/app"
	"github.com/ibeckermayer/dailyintel/internal/auth"
	"github.com/ibeckermayer/dailyintel/internal/config"
)

var (
	configFile  string
	limit       int
	hours       int
	sources     []string
	intelLimit  int
	topK        int
	backend     string
	model       string
	fromSummary string
	deliver     bool
)

var rootCmd = &cobra.Command{
	Use:   "dailyintel",
	Short: "Daily cross-platform feed digest and intelligence report",
	Long: `dailyintel fetches your home timelines, ranks posts by engagement
relative to each platform, writes a markdown digest and asks a language
model to turn it into a situation report.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		res, err := a.Run(cmd.Context(), runOptions(cmd))
		if err != nil {
			return err
		}
		log.Printf("Done: %d posts ranked, %d sent for synthesis", res.Posts, res.IntelPosts)
		fmt.Println(res.ReportPath)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to X in a browser window and save the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := authManager()
		if err != nil {
			return err
		}
		if m.IsAuthenticated() {
			log.Println("Already logged in; the saved session will be replaced")
		}
		return m.Login(cmd.Context())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the saved X session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := authManager()
		if err != nil {
			return err
		}
		if err := m.Logout(); err != nil {
			return err
		}
		log.Println("Session cleared")
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline every day at schedule.daily_at",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		cfg := a.Config()
		log.Printf("Scheduling daily run at %s %s", cfg.Schedule.DailyAt, cfg.Schedule.Timezone)
		return a.Schedule(cmd.Context(), runOptions(cmd))
	},
}

func init() {
	addRunFlags(rootCmd)

	rootCmd.Flags().StringVar(&fromSummary, "from-summary", "", "Reuse a digest instead of fetching (default: today's summary)")
	rootCmd.Flags().Lookup("from-summary").NoOptDefVal = "today"

	rootCmd.AddCommand(loginCmd, logoutCmd, scheduleCmd)
}

// addRunFlags registers the flags shared by every pipeline command
func addRunFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to a config file (.toml, .yaml or .yml)")
	pf.IntVar(&limit, "limit", 0, "Maximum posts per platform (0 = no limit)")
	pf.IntVar(&hours, "hours", 0, "Look-back window in hours")
	pf.StringSliceVar(&sources, "source", nil, "Platforms to fetch: x, bluesky, mastodon or all")
	pf.IntVar(&intelLimit, "intel-limit", 0, "Top posts sent for synthesis (0 = all)")
	pf.IntVar(&topK, "top-k", 0, "Posts drafted per category by the local backend")
	pf.StringVar(&backend, "backend", "", "Synthesis backend: cloud, local, gemini or ollama")
	pf.StringVar(&model, "model", "", "Model name for the selected provider")
	pf.BoolVar(&deliver, "deliver", false, "Send the report with the configured delivery method")
}

// loadConfig reads the config file and applies flags the user set. Flags win
// over the environment, which wins over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("limit") {
		cfg.Fetch.Limit = limit
	}
	if flags.Changed("hours") {
		cfg.Fetch.Hours = hours
	}
	if flags.Changed("source") {
		cfg.Fetch.Sources = sources
	}
	if flags.Changed("intel-limit") {
		cfg.Intel.IntelLimit = intelLimit
	}
	if flags.Changed("top-k") {
		cfg.Intel.TopK = topK
	}
	if flags.Changed("backend") {
		cfg.Intel.SetBackend(backend)
		// The provider may have changed; pick up its model, key and endpoint
		cfg.ApplyProviderEnv(os.Getenv)
	}
	if flags.Changed("model") {
		cfg.Intel.Model = model
	}
	return cfg, nil
}

func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.NewFromConfig(cfg)
}

func authManager() (*auth.Manager, error) {
	path, err := auth.DefaultCookieStorePath()
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie store path: %w", err)
	}
	return auth.NewManager(auth.NewCookieStore(path)), nil
}

func runOptions(cmd *cobra.Command) app.RunOptions {
	opts := app.RunOptions{Deliver: deliver}
	if f := cmd.Flags().Lookup("from-summary"); f != nil && f.Changed {
		opts.FromSummary = true
		if fromSummary != "today" {
			opts.SummaryPath = fromSummary
		}
	}
	return opts
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
