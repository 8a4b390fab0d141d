package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

var removeCmd = &cobra.Command{
	Use:   "remove [content-type] [content-id]",
	Short: "Delete every chunk of a document",
	Long: `Hard-deletes all chunks of one document, active or not, along with
their vectors. Use this when content is deleted from the store.`,
	Args: cobra.ExactArgs(2),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	if indexer == nil {
		return errors.New("indexer not configured")
	}

	ct := domain.ContentType(args[0])
	removed, err := indexer.RemoveContent(cmd.Context(), args[1], ct)
	if err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}

	if !removed {
		cmd.Printf("Nothing indexed for %s/%s.\n", ct, args[1])
		return nil
	}
	cmd.Printf("Removed %s/%s.\n", ct, args[1])
	return nil
}
