package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

var (
	indexTypes    []string
	indexForce    bool
	indexMaxTime  time.Duration
	indexParallel int
	indexJSON     bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index store content",
	Long: `Indexes every registered content type, or only those given with --type.
Unchanged chunks are skipped; changed chunks are re-embedded and chunks that
disappeared from a document are deactivated.

Flags override the [indexing] section of the config file.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var indexItemCmd = &cobra.Command{
	Use:   "item [content-type] [content-id]",
	Short: "Index a single document",
	Long:  `Fetches one record from its content source and indexes it.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runIndexItem,
}

var indexVectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Rebuild the vector index",
	Long: `Re-inserts the embedding of every active chunk into the vector index.
Use this after deleting or losing the index file.`,
	Args: cobra.NoArgs,
	RunE: runIndexVectors,
}

func init() {
	indexCmd.Flags().StringSliceVarP(&indexTypes, "type", "t", nil, "content types to index (repeatable)")
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "re-embed every chunk")
	indexCmd.Flags().DurationVar(&indexMaxTime, "max-time", 0, "overall time budget (0 = unbounded)")
	indexCmd.Flags().IntVarP(&indexParallel, "parallel", "p", 0, "concurrent content types (0 = one per type)")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output result as JSON")

	indexItemCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "re-embed every chunk")
	indexCmd.AddCommand(indexItemCmd)
	indexCmd.AddCommand(indexVectorsCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexer == nil {
		return errors.New("indexer not configured")
	}

	opts, err := indexOptions(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	showProgress := !indexJSON && term.IsTerminal(int(os.Stdout.Fd()))

	result, err := indexWithProgress(ctx, cmd, opts, showProgress)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if indexJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
	} else {
		printIndexResult(cmd, result)
	}

	if !result.Success {
		return errors.New("no content type made progress")
	}
	return nil
}

// indexOptions starts from configured settings and applies explicit flags.
func indexOptions(cmd *cobra.Command) (domain.IndexAllOptions, error) {
	var opts domain.IndexAllOptions
	if settingsService != nil {
		settings, err := settingsService.Get()
		if err != nil {
			return opts, fmt.Errorf("failed to load settings: %w", err)
		}
		opts = settings.Indexing.Options()
	}

	if len(indexTypes) > 0 {
		types, err := domain.ParseContentTypes(indexTypes)
		if err != nil {
			return opts, err
		}
		opts.ContentTypes = types
	}
	if cmd.Flags().Changed("force") {
		opts.ForceReindex = indexForce
	}
	if cmd.Flags().Changed("max-time") {
		if indexMaxTime < 0 {
			return opts, fmt.Errorf("%w: --max-time must not be negative", domain.ErrInvalidInput)
		}
		opts.MaxExecutionTime = indexMaxTime
	}
	if cmd.Flags().Changed("parallel") {
		if indexParallel < 0 {
			return opts, fmt.Errorf("%w: --parallel must not be negative", domain.ErrInvalidInput)
		}
		opts.Parallelism = indexParallel
	}
	return opts, nil
}

// indexWithProgress runs a full pass while rendering in-flight runs.
func indexWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	opts domain.IndexAllOptions,
	showProgress bool,
) (*domain.IndexAllResult, error) {
	type outcome struct {
		result *domain.IndexAllResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := indexer.IndexAllContent(ctx, opts)
		done <- outcome{result, err}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case out := <-done:
			if showProgress {
				cmd.Print("\r\033[K")
			}
			return out.result, out.err
		case <-ticker.C:
			if !showProgress {
				continue
			}
			runs := indexer.ProcessingStatus()
			if len(runs) == 0 {
				continue
			}
			line := ""
			for i := range runs {
				if i > 0 {
					line += "  "
				}
				line += fmt.Sprintf("%s %d/%d", runs[i].CurrentContentType, runs[i].ItemsProcessed, runs[i].TotalItems)
			}
			cmd.Printf("\r\033[KIndexing... %s", line)
		}
	}
}

func printIndexResult(cmd *cobra.Command, result *domain.IndexAllResult) {
	if len(result.ProcessingSummary) == 0 && len(result.Errors) == 0 {
		cmd.Println("Nothing to index.")
		return
	}

	types := make([]domain.ContentType, 0, len(result.ProcessingSummary))
	for ct := range result.ProcessingSummary {
		types = append(types, ct)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	cmd.Printf("%-12s %6s %6s %6s %8s %8s %9s %11s\n",
		"TYPE", "ITEMS", "FAILED", "SKIP", "INSERTED", "UPDATED", "UNCHANGED", "DEACTIVATED")
	for _, ct := range types {
		r := result.ProcessingSummary[ct]
		cmd.Printf("%-12s %6d %6d %6d %8d %8d %9d %11d\n",
			ct, r.ItemsProcessed, r.ItemsFailed, r.ItemsSkipped,
			r.ChunksInserted, r.ChunksUpdated, r.ChunksSkipped, r.ChunksDeactivated)
		for _, msg := range r.Errors {
			cmd.Printf("  ! %s\n", msg)
		}
		if r.TimedOut {
			cmd.Println("  ! stopped at time budget")
		}
	}

	for _, e := range result.Errors {
		cmd.Printf("Error: %s: %s\n", e.ContentType, e.Message)
	}
	if result.TimedOut {
		cmd.Println("Time budget exhausted; remaining content will be indexed on the next run.")
	}
}

func runIndexItem(cmd *cobra.Command, args []string) error {
	if indexer == nil {
		return errors.New("indexer not configured")
	}
	if sourceRegistry == nil {
		return errors.New("content sources not configured")
	}

	ct := domain.ContentType(args[0])
	src, err := sourceRegistry.Get(ct)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	record, err := src.GetOne(ctx, args[1])
	if err != nil {
		return fmt.Errorf("failed to fetch %s/%s: %w", ct, args[1], err)
	}

	result, err := indexer.IndexSingleItem(ctx, *record, indexForce)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if result.Skipped {
		cmd.Printf("%s/%s unchanged (%d chunks).\n", ct, record.ContentID, result.ChunksProcessed)
		return nil
	}
	cmd.Printf("%s/%s indexed: %d inserted, %d updated, %d unchanged, %d deactivated.\n",
		ct, record.ContentID, result.ChunksInserted, result.ChunksUpdated,
		result.ChunksSkipped, result.ChunksDeactivated)
	if result.Errors > 0 {
		return fmt.Errorf("%d chunks failed", result.Errors)
	}
	return nil
}

func runIndexVectors(cmd *cobra.Command, _ []string) error {
	rebuilder, ok := indexer.(VectorRebuilder)
	if !ok {
		return errors.New("indexer not configured")
	}

	n, err := rebuilder.RebuildVectors(cmd.Context())
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	cmd.Printf("Rebuilt %d vectors.\n", n)
	return nil
}
