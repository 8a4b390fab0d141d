package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

var (
	retrieveLang      string
	retrieveType      string
	retrieveMaxTokens int
	retrieveJSON      bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Assemble a context window for a question",
	Long: `Embeds the question, searches the vector index and packs the best ranked
excerpts into a token budget. Prints nothing grounded when no excerpt is
similar enough.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringVarP(&retrieveLang, "lang", "l", "", "restrict excerpts to a language")
	retrieveCmd.Flags().StringVarP(&retrieveType, "type", "t", "", "content type to rank first")
	retrieveCmd.Flags().IntVarP(&retrieveMaxTokens, "max-tokens", "m", 0, "token budget (0 = configured default)")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output the context window as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retriever == nil {
		return errors.New("retriever not configured")
	}

	rc := domain.RetrievalContext{
		Language:              retrieveLang,
		ContentTypePreference: domain.ContentType(strings.ToLower(retrieveType)),
		MaxTokens:             retrieveMaxTokens,
	}
	if rc.ContentTypePreference != "" && !rc.ContentTypePreference.IsValid() {
		return fmt.Errorf("%w: content type %q", domain.ErrInvalidInput, retrieveType)
	}

	window, err := retriever.Retrieve(cmd.Context(), args[0], rc)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if retrieveJSON {
		data, err := json.MarshalIndent(window, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal context window: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if !window.Grounded() {
		cmd.Println("No grounded context found.")
		return nil
	}

	cmd.Printf("Context (%d/%d tokens, %d candidates):\n", window.TotalTokens, window.MaxTokens, window.Candidates)
	cmd.Println()
	for i := range window.Excerpts {
		e := &window.Excerpts[i]
		title := e.Title
		if title == "" {
			title = e.ContentID
		}
		cmd.Printf("[%d] %s (%s, similarity %.2f, score %.2f)\n", i+1, title, e.ContentType, e.Similarity, e.Score)
		if e.URL != "" {
			cmd.Printf("    %s\n", e.URL)
		}
		cmd.Printf("    %s\n", e.Text)
		cmd.Println()
	}
	return nil
}
