package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kolikaran1992/reddit-watcher/internal/config"
	"github.com/kolikaran1992/reddit-watcher/internal/lockfile"
	"github.com/kolikaran1992/reddit-watcher/internal/pipeline"
	"github.com/kolikaran1992/reddit-watcher/pkg/reddit"
	"github.com/kolikaran1992/reddit-watcher/pkg/slack"
)

var runCmd = &cobra.Command{
	Use:       "run [pipeline]",
	Short:     "Process the current batch of a pipeline",
	Long:      "Acquires the pipeline's lock, fetches every subreddit in the batch at the cursor under the rate limit, persists results and advances the cursor. Exits 2 when another run holds the lock.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"hot-posts", "snapshot", "meta-update"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		pcfg, err := pipelineSettings(name)
		if err != nil {
			return err
		}

		guard, err := lockfile.Acquire(pcfg.LockFile)
		if err != nil {
			return err
		}
		defer guard.Release()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// One session per run, shared read-only by all workers.
		session, err := reddit.NewSession(ctx, redditClientConfig())
		if err != nil {
			return eris.Wrap(err, "reddit session")
		}
		defer session.Close()

		v, err := buildVariant(name, pcfg, session)
		if err != nil {
			return err
		}

		runner := pipeline.NewRunner(st, slack.New(cfg.Slack.WebhookURL))
		sum, err := runner.Run(ctx, v)
		if err != nil {
			return err
		}

		fmt.Printf("%s: processed %d (succeeded %d, failed %d), inserted %d, skipped %d in %s\n",
			name, sum.Processed, sum.Succeeded, sum.Failed, sum.Inserted, sum.Skipped,
			sum.Duration.Round(10*time.Millisecond))
		return nil
	},
}

func pipelineSettings(name string) (config.PipelineConfig, error) {
	switch name {
	case "hot-posts":
		return cfg.HotPosts, nil
	case "snapshot":
		return cfg.Snapshot, nil
	case "meta-update":
		return cfg.MetaUpdate, nil
	default:
		return config.PipelineConfig{}, eris.Errorf("unknown pipeline: %s", name)
	}
}

func buildVariant(name string, pcfg config.PipelineConfig, session reddit.Session) (*pipeline.Variant, error) {
	switch name {
	case "hot-posts":
		return pipeline.HotPosts(pcfg, session)
	case "snapshot":
		return pipeline.Snapshot(pcfg, session)
	case "meta-update":
		return pipeline.MetaUpdate(pcfg, session)
	default:
		return nil, eris.Errorf("unknown pipeline: %s", name)
	}
}

func redditClientConfig() reddit.Config {
	return reddit.Config{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
		BaseURL:      cfg.Reddit.BaseURL,
		AuthURL:      cfg.Reddit.AuthURL,
		Timeout:      cfg.Reddit.Timeout(),
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
