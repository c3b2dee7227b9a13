// Command dictl is a dev CLI for dailyintel maintenance and debugging tasks.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/dailyintel/internal/app"
	browseropts "github.com/ibeckermayer/dailyintel/internal/browser"
	"github.com/ibeckermayer/dailyintel/internal/config"
	"github.com/ibeckermayer/dailyintel/internal/store"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "dictl",
	Short:        "Maintenance and debugging tasks for dailyintel",
	SilenceUsage: true,
}

var botTestCmd = &cobra.Command{
	Use:   "bot-test",
	Short: "Open bot.sannysoft.com to audit the scraper's browser fingerprint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("Opening bot.sannysoft.com with stealth browser options...")

		// non-headless so you can see it
		ctx, cancel := browseropts.NewContext(cmd.Context(), browseropts.Settings{})
		defer cancel()

		err := chromedp.Run(ctx,
			chromedp.Navigate("https://bot.sannysoft.com"),
			chromedp.WaitVisible("body", chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("failed to navigate: %w", err)
		}

		fmt.Println("Press Enter to close the browser...")
		fmt.Scanln()

		log.Println("Done.")
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:       "open <config|output|cache>",
	Short:     "Open the config file, output directory or cache directory",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"config", "output", "cache"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := openTarget(args[0])
		if err != nil {
			return err
		}
		if err := browser.OpenFile(path); err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rerun ranking and synthesis on the most recently cached posts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Output.Cache = true

		a, err := app.NewFromConfig(cfg)
		if err != nil {
			return err
		}

		posts, path, err := store.LoadLatestStepOutput[[]types.Post](a.Cache(), store.StepPosts)
		if err != nil {
			return fmt.Errorf("no cached posts to replay: %w", err)
		}
		log.Printf("Replaying %d posts from %s", len(posts), path)

		res, err := a.Run(cmd.Context(), app.RunOptions{Posts: posts})
		if err != nil {
			return err
		}
		fmt.Println(res.ReportPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file")
	rootCmd.AddCommand(botTestCmd, openCmd, replayCmd)
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func openTarget(target string) (string, error) {
	switch target {
	case "config":
		if configFile != "" {
			return configFile, nil
		}
		path, err := config.ConfigPath()
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := config.Default().Save(); err != nil {
				return "", fmt.Errorf("could not create default config: %w", err)
			}
			log.Printf("Created default config at: %s", path)
		}
		return path, nil
	case "output":
		cfg, err := loadConfig()
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
			return "", err
		}
		return cfg.Output.Dir, nil
	case "cache":
		cfg, err := loadConfig()
		if err != nil {
			return "", err
		}
		if cfg.Output.CacheDir != "" {
			return cfg.Output.CacheDir, nil
		}
		return config.CacheDir()
	default:
		return "", fmt.Errorf("unknown target: %s", target)
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: %v", err)
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
