package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kolikaran1992/reddit-watcher/internal/batch"
	"github.com/kolikaran1992/reddit-watcher/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show batch snapshot state for each pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range []struct {
			name string
			cfg  config.PipelineConfig
		}{
			{"hot-posts", cfg.HotPosts},
			{"snapshot", cfg.Snapshot},
			{"meta-update", cfg.MetaUpdate},
		} {
			fmt.Print(pipelineStatus(p.name, p.cfg))
		}
		return nil
	},
}

func pipelineStatus(name string, pcfg config.PipelineConfig) string {
	if pcfg.BatchFile == "" {
		return fmt.Sprintf("%-12s cursorless (up to %d per run)\n", name, pcfg.BatchSize)
	}

	batches := batch.NewStore(pcfg.BatchFile)
	if !batches.Exists() {
		return fmt.Sprintf("%-12s no batch file at %s (generated on first run)\n", name, pcfg.BatchFile)
	}

	snap, err := batches.Load()
	if err != nil {
		return fmt.Sprintf("%-12s unreadable batch file at %s: %v\n", name, pcfg.BatchFile, err)
	}

	total := 0
	for _, keys := range snap.Batches {
		total += len(keys)
	}
	return fmt.Sprintf("%-12s batch %d/%d, %d subreddits in batches of %d, file %s\n",
		name, snap.CurrentBatchIndex+1, snap.TotalBatches, total, snap.BatchSize, pcfg.BatchFile)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
