package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kolikaran1992/reddit-watcher/internal/batch"
	"github.com/kolikaran1992/reddit-watcher/internal/store"
)

var (
	generatePipeline string
	generateForce    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a pipeline's batch snapshot file from the store population",
	Long:  "Partitions the pipeline's subreddit population into fixed-size batches and writes the snapshot file with the cursor at zero. Regeneration discards the old cursor, so an existing snapshot is only overwritten with --force.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pcfg, err := pipelineSettings(generatePipeline)
		if err != nil {
			return err
		}
		if pcfg.BatchFile == "" {
			return eris.Errorf("pipeline %s has no batch file", generatePipeline)
		}

		batches := batch.NewStore(pcfg.BatchFile)
		if batches.Exists() && !generateForce {
			return eris.Errorf("batch file %s exists; pass --force to regenerate and reset the cursor", pcfg.BatchFile)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		population, err := generatePopulation(ctx, st, generatePipeline)
		if err != nil {
			return err
		}

		snap, err := batches.Generate(population, pcfg.BatchSize)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d subreddits in %d batches of %d at %s\n",
			generatePipeline, len(population), snap.TotalBatches, snap.BatchSize, pcfg.BatchFile)
		return nil
	},
}

func generatePopulation(ctx context.Context, st store.Store, name string) ([]string, error) {
	switch name {
	case "hot-posts":
		return st.ListMarketableNames(ctx)
	case "snapshot":
		return st.ListSubredditNames(ctx)
	default:
		return nil, eris.Errorf("pipeline %s is not batched", name)
	}
}

func init() {
	generateCmd.Flags().StringVar(&generatePipeline, "pipeline", "", "pipeline to generate batches for (hot-posts|snapshot)")
	generateCmd.Flags().BoolVar(&generateForce, "force", false, "overwrite an existing batch file and reset its cursor")
	_ = generateCmd.MarkFlagRequired("pipeline")
	rootCmd.AddCommand(generateCmd)
}
