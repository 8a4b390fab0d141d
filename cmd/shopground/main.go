// Command shopground indexes store content and serves grounded context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/shopground/internal/adapters/driven/ai"
	"github.com/custodia-labs/shopground/internal/adapters/driven/config/file"
	"github.com/custodia-labs/shopground/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/shopground/internal/adapters/driven/vector/hnsw"
	"github.com/custodia-labs/shopground/internal/adapters/driving/cli"
	"github.com/custodia-labs/shopground/internal/connectors/filesystem"
	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/core/services"
	"github.com/custodia-labs/shopground/internal/logger"
	"github.com/custodia-labs/shopground/internal/postprocessors"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = ""

const (
	vectorFile = "vectors.hnsw"
	contentDir = "content"
	envFile    = ".env"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cli.SetVersion(version)

	app, err := wire(ctx)
	if err != nil {
		// Configuration problems must not block "config set" from fixing them.
		logger.Warn("%v", err)
	}
	if app != nil {
		defer app.Close()
	}
	return cli.Execute(ctx)
}

// application owns every resource opened at startup.
type application struct {
	store    *sqlite.Store
	vectors  *hnsw.Index
	embedder driven.EmbeddingService
	sources  *services.SourceRegistry
}

// wire builds the services and installs them into the CLI. A partially
// built application is returned alongside the error so commands that
// only need settings keep working.
func wire(ctx context.Context) (*application, error) {
	dir, err := file.DefaultDir()
	if err != nil {
		return nil, err
	}
	configStore, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, err
	}
	if err := loadEnv(filepath.Join(dir, envFile)); err != nil {
		return nil, err
	}
	settingsService := services.NewSettingsService(configStore)
	cli.Configure(cli.Services{Settings: settingsService, EmbeddingCheck: ai.ValidateEmbeddingConfig})

	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &application{}

	app.store, err = sqlite.NewStore(dir)
	if err != nil {
		return app, fmt.Errorf("open knowledge store: %w", err)
	}

	app.vectors, err = openVectors(filepath.Join(dir, vectorFile))
	if err != nil {
		return app, err
	}

	app.embedder, err = ai.BuildEmbeddingService(&settings.Embedding, settings.Indexing.CacheTTL)
	if err != nil {
		logger.Warn("embedding service unavailable: %v", err)
	}

	root := settings.ContentDir
	if root == "" {
		root = filepath.Join(dir, contentDir)
	}
	app.sources, err = discoverSources(root)
	if err != nil {
		return app, err
	}

	pipeline := postprocessors.NewDefaultPipeline(settings.Indexing.ChunkSize, settings.Indexing.Overlap)

	indexerOpts := []services.IndexerOption{services.WithVectorIndex(app.vectors)}
	if app.embedder != nil {
		indexerOpts = append(indexerOpts, services.WithEmbeddingService(app.embedder))
	}
	indexer := services.NewIndexer(app.store, app.sources, pipeline, indexerOpts...)
	if err := indexer.SetBatchSize(settings.Indexing.BatchSize); err != nil {
		return app, err
	}
	if err := indexer.SetCacheTTL(settings.Indexing.CacheTTL); err != nil {
		return app, err
	}

	retriever := services.NewRetriever(app.store, app.vectors, app.embedder,
		services.WithRetrievalSettings(settings.Retrieval))

	scheduler := services.NewScheduler(
		settingsService.GetSchedulerConfig(),
		app.store.SchedulerStore(),
		indexer,
		services.WithIndexOptions(settings.Indexing.Options()),
	)

	if app.vectors.Len() == 0 {
		if n, err := indexer.RebuildVectors(ctx); err != nil {
			logger.Warn("rebuild vector index: %v", err)
		} else if n > 0 {
			logger.Info("rebuilt %d vectors from the knowledge store", n)
		}
	}

	cli.Configure(cli.Services{
		Indexer:        indexer,
		Retriever:      retriever,
		Scheduler:      scheduler,
		Settings:       settingsService,
		Sources:        app.sources,
		EmbeddingCheck: ai.ValidateEmbeddingConfig,
	})
	return app, nil
}

// loadEnv reads KEY=value pairs such as OPENAI_API_KEY from path.
// Variables already set in the environment win.
func loadEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// openVectors loads the persisted index. An unreadable index is discarded;
// it is rebuilt from the knowledge store below.
func openVectors(path string) (*hnsw.Index, error) {
	idx, err := hnsw.New(path)
	if err == nil {
		return idx, nil
	}
	logger.Warn("vector index unreadable, starting empty: %v", err)
	for _, p := range []string{path, path + ".meta"} {
		if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("discard vector index: %w", rmErr)
		}
	}
	return hnsw.New(path)
}

func discoverSources(root string) (*services.SourceRegistry, error) {
	found, err := filesystem.Discover(root)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("content directory %s does not exist; no sources registered", root)
		return services.NewSourceRegistry()
	}
	if err != nil {
		return nil, err
	}

	sources := make([]driven.ContentSource, len(found))
	for i, src := range found {
		sources[i] = src
	}
	registry, err := services.NewSourceRegistry(sources...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	return registry, nil
}

// Close releases resources in reverse order of acquisition.
// The vector index is written to disk on close.
func (a *application) Close() {
	if a.sources != nil {
		if err := a.sources.Close(); err != nil {
			logger.Warn("close sources: %v", err)
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			logger.Warn("close embedding service: %v", err)
		}
	}
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			logger.Warn("save vector index: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("close knowledge store: %v", err)
		}
	}
}
