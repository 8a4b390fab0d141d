package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/shopground/internal/core/services"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change values in ~/.shopground/config.toml.

Keys use dot notation, for example indexing.batch_size or retrieval.max_tokens.
Lists are comma separated. Values are validated before they are saved.`,
	RunE: runConfigList,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key with its effective value",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print a configured value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a value",
	Long: `Sets a configuration value. When the value is omitted for a secret key
such as embedding.api_key it is read from the terminal without echo.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigSet,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate settings and ping the embedding provider",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	for _, key := range services.KnownKeys() {
		val, ok := settingsService.Value(key)
		switch {
		case !ok:
			cmd.Printf("%-32s (default)\n", key)
		case services.IsSecretKey(key):
			cmd.Printf("%-32s %s\n", key, maskAPIKey(val))
		default:
			cmd.Printf("%-32s %s\n", key, val)
		}
	}

	if _, err := settingsService.Get(); err != nil {
		cmd.Printf("\nWarning: %v\n", err)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key := args[0]
	val, ok := settingsService.Value(key)
	if !ok {
		cmd.Println("(not set)")
		return nil
	}
	if services.IsSecretKey(key) {
		val = maskAPIKey(val)
	}
	cmd.Println(val)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key := args[0]
	var raw string
	switch {
	case len(args) == 2:
		raw = args[1]
	case services.IsSecretKey(key):
		cmd.Printf("Enter value for %s: ", key)
		raw = readPassword(cmd.InOrStdin())
		cmd.Println()
	default:
		return fmt.Errorf("a value is required for %s", key)
	}

	if err := settingsService.Set(key, raw); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	if err := applyLive(key); err != nil {
		return err
	}

	if services.IsSecretKey(key) {
		raw = maskAPIKey(raw)
	}
	cmd.Printf("Set %s = %s\n", key, raw)
	return nil
}

// applyLive pushes indexing knobs into a running indexer.
func applyLive(key string) error {
	if indexer == nil {
		return nil
	}
	settings, err := settingsService.Get()
	if err != nil {
		return err
	}
	switch key {
	case services.KeyBatchSize:
		return indexer.SetBatchSize(settings.Indexing.BatchSize)
	case services.KeyCacheTTLSeconds:
		return indexer.SetCacheTTL(settings.Indexing.CacheTTL)
	}
	return nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword(in io.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return string(password)
		}
	}
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return err
	}
	cmd.Println("Settings are valid.")

	emb := settings.Embedding
	if !emb.IsConfigured() {
		cmd.Println("Embedding provider not configured; chunks are stored without embeddings.")
		return nil
	}
	if embeddingCheck == nil {
		return errors.New("embedding check not configured")
	}
	if err := embeddingCheck(cmd.Context(), &emb); err != nil {
		return err
	}
	cmd.Printf("Embedding provider reachable: %s (%s).\n", emb.Provider, emb.Model)
	return nil
}
