package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/breadml/bakectl/internal/bakery"
	"github.com/breadml/bakectl/internal/config"
	"github.com/breadml/bakectl/internal/journal"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "bakectl",
	Short:   "Drive model bakes on the bread bakery",
	Version: version,
	Long: `bakectl configures repositories, prompts, targets, and bakes on the
bread bakery, runs the generation pipeline end to end, and chats with
baked models over the inference endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mockServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

// initLogging sets the default slog handler. The level is read from
// BAKECTL_LOG_LEVEL directly so logging works even when config loading
// fails later.
func initLogging() {
	logLevel := slog.LevelInfo
	if strings.EqualFold(os.Getenv("BAKECTL_LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

var loadConfig = func() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if strings.EqualFold(cfg.Log.Level, "debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	return cfg, nil
}

func newBakeryClient(cfg config.Config) *bakery.Client {
	return bakery.NewClientWithBaseURL(cfg.API.Key, cfg.API.BaseURL)
}

func newPoller(cfg config.Config) (bakery.Poller, error) {
	interval, err := time.ParseDuration(cfg.Poll.Interval)
	if err != nil {
		return bakery.Poller{}, fmt.Errorf("invalid poll.interval %q: %w", cfg.Poll.Interval, err)
	}
	return bakery.Poller{
		MaxAttempts: cfg.Poll.MaxAttempts,
		Interval:    interval,
	}, nil
}

func openJournal(cfg config.Config) (*journal.Store, error) {
	store, err := journal.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening run journal: %w", err)
	}
	return store, nil
}
