package postprocessors

import (
	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/postprocessors/chunker"
	"github.com/custodia-labs/shopground/internal/postprocessors/hasher"
)

// DefaultOrder is the processor order used for indexing.
var DefaultOrder = []string{"chunker", "hasher"}

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("hasher", buildHasher)
}

// NewDefaultPipeline builds DefaultOrder from the built-in processors.
// A non-positive chunkSize keeps the chunker default.
func NewDefaultPipeline(chunkSize, overlap int) *Pipeline {
	r := NewRegistry()
	RegisterDefaults(r)

	// Built-in builders never fail and every DefaultOrder name is registered.
	p, _ := r.BuildPipeline(DefaultOrder, map[string]any{
		"chunk_size": chunkSize,
		"overlap":    overlap,
	})
	return p
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - chunk_size (int): Characters per chunk (default: 1000)
//   - overlap (int): Overlapping characters between chunks (default: 200)
//   - type_chunk_sizes (table): Per content type chunk size overrides
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if cfg != nil {
		if size := getIntFromConfig(cfg, "chunk_size"); size > 0 {
			opts = append(opts, chunker.WithChunkSize(size))
		}
		if _, ok := cfg["overlap"]; ok {
			opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
		}
		if sizes, ok := cfg["type_chunk_sizes"].(map[string]any); ok {
			for name, v := range sizes {
				ct := domain.ContentType(name)
				if !ct.IsValid() {
					continue
				}
				opts = append(opts, chunker.WithTypeChunkSize(ct, getIntFromConfig(map[string]any{name: v}, name)))
			}
		}
	}

	return chunker.New(opts...), nil
}

func buildHasher(_ map[string]any) (driven.PostProcessor, error) {
	return hasher.New(), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
