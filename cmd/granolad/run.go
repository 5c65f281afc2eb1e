package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single processing pass and exit",
	Long: `Run loads the Granola cache once, extracts action items from any
meetings not yet processed, persists them, and exits. Useful for cron
or manual catch-up without the daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context())
	},
}

func runOnce(ctx context.Context) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer func() {
		_ = d.logger.Sync()
	}()

	result := d.processor.Run(ctx)
	if result.Skipped {
		return fmt.Errorf("a processing pass is already in flight")
	}

	d.logger.Info(ctx, "pass complete",
		zap.Int("meetings_processed", result.ProcessedCount),
		zap.Int("action_items", result.ActionItemCount),
		zap.Int("failures", len(result.Failures)),
	)

	fmt.Printf("Processed %d meetings, extracted %d action items",
		result.ProcessedCount, result.ActionItemCount)
	if len(result.Failures) > 0 {
		fmt.Printf(", %d meetings failed (will retry next pass)", len(result.Failures))
	}
	fmt.Println()

	for id, ferr := range result.Failures {
		d.logger.Warn(ctx, "meeting failed",
			zap.String("meeting_id", id),
			zap.Error(ferr),
		)
	}

	if len(result.Failures) > 0 {
		return fmt.Errorf("%d meetings failed extraction", len(result.Failures))
	}
	return nil
}
