// Package cli provides the shopground command-line interface.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/core/ports/driving"
	"github.com/custodia-labs/shopground/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var verbose bool

// SettingsManager reads and writes persisted configuration.
type SettingsManager interface {
	Get() (domain.Settings, error)
	Set(key, raw string) error
	Value(key string) (string, bool)
}

// SourceLookup resolves registered content sources.
type SourceLookup interface {
	Get(ct domain.ContentType) (driven.ContentSource, error)
	Types() []domain.ContentType
}

// VectorRebuilder restores the vector index from stored chunks.
type VectorRebuilder interface {
	RebuildVectors(ctx context.Context) (int, error)
}

// EmbeddingChecker pings the embedding provider described by settings.
type EmbeddingChecker func(ctx context.Context, settings *domain.EmbeddingSettings) error

// Services holds the dependencies commands run against.
// Nil fields make the commands that need them fail with "not configured".
type Services struct {
	Indexer        driving.Indexer
	Retriever      driving.Retriever
	Scheduler      driving.Scheduler
	Settings       SettingsManager
	Sources        SourceLookup
	EmbeddingCheck EmbeddingChecker
}

var (
	indexer         driving.Indexer
	retriever       driving.Retriever
	scheduler       driving.Scheduler
	settingsService SettingsManager
	sourceRegistry  SourceLookup
	embeddingCheck  EmbeddingChecker
)

var rootCmd = &cobra.Command{
	Use:   "shopground",
	Short: "Index store content and retrieve grounded context",
	Long: `shopground turns store content (products, pages, policies, FAQs and
categories) into embedded chunks and assembles bounded context windows
for answering shopper questions.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		logger.SetTimestamps(isLongRunning(cmd))
	},
}

// annotationLongRunning marks commands that run until interrupted.
// Their log lines carry timestamps.
const annotationLongRunning = "long-running"

// longRunning is the annotation set for such commands.
var longRunning = map[string]string{annotationLongRunning: "true"}

func isLongRunning(cmd *cobra.Command) bool {
	return cmd.Annotations[annotationLongRunning] == "true"
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Configure installs the services commands run against.
func Configure(s Services) {
	indexer = s.Indexer
	retriever = s.Retriever
	scheduler = s.Scheduler
	settingsService = s.Settings
	sourceRegistry = s.Sources
	embeddingCheck = s.EmbeddingCheck
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
