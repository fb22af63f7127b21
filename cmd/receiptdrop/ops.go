package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/ReceiptDrop/internal/auth"
	"github.com/dharsanguruparan/ReceiptDrop/internal/config"
	"github.com/dharsanguruparan/ReceiptDrop/internal/database"
	"github.com/dharsanguruparan/ReceiptDrop/internal/queue"
)

func newMigrateCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the extractions table and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), database.Schema)
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := database.Connect(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return err
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	return cmd
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the extraction queue",
	}
	cmd.AddCommand(newQueueStatsCmd(), newQueueFindCmd())
	return cmd
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts per partition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, inspector, err := openInspector()
			if err != nil {
				return err
			}
			defer inspector.Close()
			info, err := inspector.GetQueueInfo(cfg.Queue.Name)
			if err != nil {
				return fmt.Errorf("queue info %s: %w", cfg.Queue.Name, err)
			}
			return writeStats(cmd.OutOrStdout(), info)
		},
	}
}

func writeStats(w io.Writer, info *asynq.QueueInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "queue\t%s\n", info.Queue)
	fmt.Fprintf(tw, "paused\t%t\n", info.Paused)
	fmt.Fprintf(tw, "%s\t%d\n", queue.PartitionActive, info.Active)
	fmt.Fprintf(tw, "%s\t%d\n", queue.PartitionWaiting, info.Pending)
	fmt.Fprintf(tw, "%s\t%d\n", queue.PartitionDelayed, info.Scheduled+info.Retry)
	fmt.Fprintf(tw, "%s\t%d\n", queue.PartitionFailed, info.Archived)
	fmt.Fprintf(tw, "processed today\t%d\n", info.Processed)
	fmt.Fprintf(tw, "failed today\t%d\n", info.Failed)
	return tw.Flush()
}

func newQueueFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <extractionId>",
		Short: "Find the queued task for an extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, inspector, err := openInspector()
			if err != nil {
				return err
			}
			defer inspector.Close()
			loc, err := queue.Locate(cmd.Context(), inspector, cfg.Queue.Name, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if loc == nil {
				_, err = fmt.Fprintf(out, "no task for %s\n", args[0])
				return err
			}
			_, err = fmt.Fprintf(out, "%s\t%s\t%s\n", loc.Partition, loc.Queue, loc.TaskID)
			return err
		},
	}
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <userId>",
		Short: "Issue a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.New(cfg.Auth).GenerateToken(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}

func openInspector() (*config.Config, *asynq.Inspector, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	inspector := asynq.NewInspector(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return cfg, inspector, nil
}
