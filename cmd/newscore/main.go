// Command newscore runs the news ingestion core from the command line:
// one-shot fetch/search fan-outs plus status inspection, sharing the same
// composition root the embedding trading system uses.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/internal/core"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter/cryptopanic"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter/newsapi"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/adapter/rss"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/health"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/logger"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/observability"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/tracker"
)

var version = "0.1.0"

func main() {
	// Load .env if present; API keys usually live there.
	_ = godotenv.Load()

	var configFile, logLevel string
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "newscore",
		Short: "News ingestion core for the trading agents",
		Long: `newscore retrieves crypto news across the configured sources with
per-source rate limiting, health tracking, and classified errors.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "newscore.yaml", "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall command timeout")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("newscore v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var fetchQuery string
	var fetchLimit int
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the latest articles across all enabled sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(configFile, logLevel, timeout, func(ctx context.Context, c *core.IngestionCore) error {
				result, err := c.Fetch(ctx, fetchQuery, fetchLimit)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	fetchCmd.Flags().StringVarP(&fetchQuery, "query", "q", "", "Optional query narrowing each source")
	fetchCmd.Flags().IntVarP(&fetchLimit, "limit", "n", 50, "Maximum number of articles to aggregate")
	root.AddCommand(fetchCmd)

	var searchLimit int
	searchCmd := &cobra.Command{
		Use:   "search <keyword> [keyword...]",
		Short: "Search articles matching the keywords across all enabled sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(configFile, logLevel, timeout, func(ctx context.Context, c *core.IngestionCore) error {
				result, err := c.Search(ctx, args, searchLimit)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "Maximum number of articles to aggregate")
	root.AddCommand(searchCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configFile); err == nil {
				return fmt.Errorf("%s already exists", configFile)
			}
			if err := config.Save(configFile, starterConfig()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", configFile)
			return nil
		},
	})
	root.AddCommand(configCmd)

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print connection, health, and alert summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(configFile, logLevel, timeout, func(ctx context.Context, c *core.IngestionCore) error {
				c.CheckHealthNow(ctx)
				return printJSON(statusReport{
					Connections: c.ConnectionStatus(),
					Tracker:     c.TrackerStatus(),
					Health:      c.HealthSummary(),
					System:      c.SystemSummary(),
					Alerts:      c.ActiveAlerts(),
				})
			})
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// starterConfig is the config init template: defaults plus one example
// source per adapter type.
func starterConfig() *config.CoreConfig {
	cfg := config.NewCoreConfig()
	cfg.Sources = []config.SourceConfig{
		{
			Name:               "coindesk-rss",
			AdapterType:        "rss",
			BaseURL:            "https://www.coindesk.com/arc/outboundfeeds/rss/",
			RateLimitPerMinute: 30,
			TimeoutSeconds:     10,
			Enabled:            true,
			Priority:           1,
		},
		{
			Name:               "newsapi",
			AdapterType:        "newsapi",
			BaseURL:            "https://newsapi.org/v2",
			APIKey:             "${NEWSAPI_KEY}",
			RateLimitPerMinute: 60,
			TimeoutSeconds:     15,
			Enabled:            false,
			Priority:           2,
		},
		{
			Name:               "cryptopanic",
			AdapterType:        "cryptopanic",
			BaseURL:            "https://cryptopanic.com/api/v1",
			APIKey:             "${CRYPTOPANIC_KEY}",
			RateLimitPerMinute: 30,
			TimeoutSeconds:     15,
			Enabled:            false,
			Priority:           3,
		},
	}
	return cfg
}

// statusReport is the status command output shape
type statusReport struct {
	Connections map[string]adapter.ConnectionInfo `json:"connections"`
	Tracker     tracker.Status                    `json:"tracker"`
	Health      map[string]health.Record          `json:"health"`
	System      health.Summary                    `json:"system"`
	Alerts      []health.Alert                    `json:"alerts"`
}

// withCore builds the ingestion core from configuration, runs fn, and tears
// everything down.
func withCore(configFile, logLevel string, timeout time.Duration, fn func(ctx context.Context, c *core.IngestionCore) error) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	level := cfg.Observability.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if err := logger.Init(logger.Config{Level: level}); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := observability.Init(version, cfg.Observability.EnableTracing); err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	registry := adapter.NewRegistry(cfg.Reliability)
	rss.Register(registry)
	newsapi.Register(registry)
	cryptopanic.Register(registry)

	c, err := core.New(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer func() {
		c.Shutdown(ctx)
		if err := observability.Shutdown(context.Background()); err != nil {
			logger.Get().Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	return fn(ctx, c)
}

// printJSON writes v to stdout as indented JSON
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
