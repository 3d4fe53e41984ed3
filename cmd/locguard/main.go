// Command locguard keeps a scraper's locator file working as the target
// page drifts.
//
// Usage:
//
//	locguard monitor                      # run the drift battery once
//	locguard mine                         # mine, validate and apply locators
//	locguard watch                        # monitor on an interval, mine on drift
//	locguard serve                        # HTTP API and MCP endpoint
//	locguard mcp                          # MCP over stdio
//	locguard validate                     # check config and locator file
//	locguard restore                      # put the backup back
//
// Every command accepts --config locguard.yaml and --html page.html to run
// against a saved snapshot instead of a live browser.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	htmlPath   string
	logLevel   string
	noJournal  bool
)

var rootCmd = &cobra.Command{
	Use:           "locguard",
	Short:         "locguard repairs and monitors the locators of a table scraper.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to locguard.yaml")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with LOCGUARD_* overrides")
	pf.StringVar(&htmlPath, "html", "", "run against a saved HTML snapshot instead of Chrome")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&noJournal, "no-journal", false, "do not open the SQLite journal")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "locguard:", err)
		stop()
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
