package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/logger"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	Long:  `Shows chunk counts in the knowledge store, cumulative indexing counters, runs in progress
and the most recent scheduled passes.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

// statusHistoryLimit is how many scheduled passes status reports.
const statusHistoryLimit = 5

type statusReport struct {
	Statistics domain.Statistics    `json:"statistics"`
	Runs       []domain.IndexingRun `json:"runs"`
	Scheduled  []domain.TaskResult  `json:"scheduled,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if indexer == nil {
		return errors.New("indexer not configured")
	}

	report := statusReport{
		Statistics: indexer.Statistics(cmd.Context()),
		Runs:       indexer.ProcessingStatus(),
	}
	if scheduler != nil {
		history, err := scheduler.History(cmd.Context(), statusHistoryLimit)
		if err != nil {
			logger.Warn("failed to read scheduler history: %v", err)
		}
		report.Scheduled = history
	}

	if statusJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	store := report.Statistics.Store
	cmd.Println("[Store]")
	cmd.Printf("  Documents: %d\n", store.Documents)
	cmd.Printf("  Chunks: %d active, %d inactive\n", store.ActiveChunks, store.InactiveChunks)
	if len(store.PerType) > 0 {
		types := make([]domain.ContentType, 0, len(store.PerType))
		for ct := range store.PerType {
			types = append(types, ct)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		for _, ct := range types {
			cmd.Printf("    %-10s %d\n", ct, store.PerType[ct])
		}
	}
	cmd.Println()

	stats := report.Statistics
	cmd.Println("[Indexing]")
	cmd.Printf("  Runs: %d\n", stats.Runs)
	if !stats.LastRunAt.IsZero() {
		cmd.Printf("  Last run: %s (%s)\n", stats.LastRunAt.Format(time.RFC3339), stats.LastRunDuration.Round(time.Millisecond))
	}
	cmd.Printf("  Items: %d processed, %d failed\n", stats.ItemsProcessed, stats.ItemsFailed)
	cmd.Printf("  Chunks: %d inserted, %d updated, %d unchanged, %d deactivated, %d deleted\n",
		stats.ChunksInserted, stats.ChunksUpdated, stats.ChunksSkipped, stats.ChunksDeactivated, stats.ChunksDeleted)
	cmd.Printf("  Embedding requests: %d\n", stats.EmbeddingRequests)

	if len(report.Runs) > 0 {
		cmd.Println()
		cmd.Println("[In progress]")
		for _, run := range report.Runs {
			cmd.Printf("  %s: %d/%d items (%.0f%%)", run.CurrentContentType, run.ItemsProcessed, run.TotalItems, run.BatchProgress*100)
			if run.CurrentContentID != "" {
				cmd.Printf(" at %s", run.CurrentContentID)
			}
			cmd.Println()
		}
	}

	if len(report.Scheduled) > 0 {
		cmd.Println()
		cmd.Println("[Scheduled passes]")
		for _, r := range report.Scheduled {
			state := "ok"
			if !r.Success {
				state = "failed: " + r.Error
			}
			cmd.Printf("  %s  %d items in %s  %s\n",
				r.StartedAt.Format(time.RFC3339), r.ItemsProcessed, r.Duration().Round(time.Millisecond), state)
		}
	}
	return nil
}
