package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/logger"
)

var watchTypes []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index content as it changes",
	Long: `Watches every content source that supports change events and applies
each create, update or delete to the index until interrupted.`,
	Args:        cobra.NoArgs,
	RunE:        runWatch,
	Annotations: longRunning,
}

func init() {
	watchCmd.Flags().StringSliceVarP(&watchTypes, "type", "t", nil, "content types to watch (default all)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if indexer == nil {
		return errors.New("indexer not configured")
	}
	if sourceRegistry == nil {
		return errors.New("content sources not configured")
	}

	types := sourceRegistry.Types()
	if len(watchTypes) > 0 {
		parsed, err := domain.ParseContentTypes(watchTypes)
		if err != nil {
			return err
		}
		types = parsed
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var streams []<-chan domain.ContentChange
	for _, ct := range types {
		src, err := sourceRegistry.Get(ct)
		if err != nil {
			return err
		}
		watcher, ok := src.(driven.WatchingSource)
		if !ok {
			logger.Warn("watch: %s source does not emit changes", ct)
			continue
		}
		changes, err := watcher.Watch(ctx)
		if err != nil {
			return fmt.Errorf("watch %s: %w", ct, err)
		}
		streams = append(streams, changes)
	}
	if len(streams) == 0 {
		return errors.New("no watchable content sources")
	}

	cmd.Printf("Watching %d content sources. Press Ctrl+C to stop.\n", len(streams))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, changes := range streams {
		wg.Add(1)
		go func(changes <-chan domain.ContentChange) {
			defer wg.Done()
			for change := range changes {
				err := indexer.HandleChange(ctx, change)
				mu.Lock()
				if err != nil {
					cmd.Printf("%s %s: %v\n", change.Kind, change.Record.Key(), err)
				} else {
					cmd.Printf("%s %s\n", change.Kind, change.Record.Key())
				}
				mu.Unlock()
			}
		}(changes)
	}
	wg.Wait()
	return nil
}
