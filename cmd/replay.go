package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealsync/internal/webhook"
)

var (
	replayList  bool
	replayLimit int
)

// replay re-processes dead-lettered deliveries through the full pipeline.
// A successful replay removes the entry; a failed one bumps its retry
// count and keeps it.
var replayCmd = &cobra.Command{
	Use:   "replay [delivery-id]",
	Short: "List or replay dead-lettered deliveries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if env.DLQ == nil {
			return eris.New("dead-letter store path not configured")
		}

		if replayList || len(args) == 0 {
			entries, err := env.DLQ.List(ctx, replayLimit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no dead-lettered deliveries")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  deal=%s  type=%s  retries=%d  %s\n",
					e.ID, e.DealID, e.ErrorType, e.RetryCount, e.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		}

		id := args[0]
		entry, err := env.DLQ.Get(ctx, id)
		if err != nil {
			return err
		}

		// Replay through a processor without dead-lettering so a second
		// failure updates the existing entry instead of adding one.
		proc := webhook.NewProcessor(env.Builder, env.Catalog, env.Upserter, env.Enricher, nil)
		res, err := proc.Process(ctx, entry.Payload)
		if err != nil {
			if merr := env.DLQ.MarkRetried(ctx, id, err); merr != nil {
				zap.L().Warn("mark retried", zap.Error(merr))
			}
			return eris.Wrap(err, "replay failed")
		}

		if err := env.DLQ.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("replayed deal %s into record %d (%d fields)\n", res.DealID, res.RecordID, res.FieldsWritten)
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayList, "list", false, "list entries instead of replaying")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 50, "max entries to list")
	rootCmd.AddCommand(replayCmd)
}
