package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kolikaran1992/reddit-watcher/internal/config"
	"github.com/kolikaran1992/reddit-watcher/internal/lockfile"
)

// Exit codes understood by the invoking scheduler. Partial-failure runs
// that advanced the cursor still exit 0.
const (
	exitOK         = 0
	exitStructural = 1
	exitContention = 2
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reddit-watcher",
	Short: "Batched, rate-limited subreddit collection pipelines",
	Long:  "Collects hot posts, activity snapshots and metadata for a subreddit population in fixed-size recurring batches, resuming from a durable cursor on each cron invocation.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	os.Exit(run())
}

func run() int {
	err := rootCmd.Execute()
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, lockfile.ErrAlreadyRunning):
		return exitContention
	default:
		return exitStructural
	}
}
