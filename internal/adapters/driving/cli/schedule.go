package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run periodic indexing in the foreground",
	Long: `Starts the scheduler, which runs a full index pass every
scheduler.interval_minutes when scheduler.enabled is true. Task state and
run history are kept in the knowledge store database.`,
	Args:        cobra.NoArgs,
	RunE:        runSchedule,
	Annotations: longRunning,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}

	cmd.Println("Scheduler running. Press Ctrl+C to stop.")
	err := scheduler.Start(cmd.Context())
	if stopErr := scheduler.Stop(); err == nil {
		err = stopErr
	}
	if errors.Is(err, context.Canceled) {
		cmd.Println("Scheduler stopped.")
		return nil
	}
	return err
}
