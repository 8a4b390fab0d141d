package services

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyBatchSize        = "indexing.batch_size"
	KeyCacheTTLSeconds  = "indexing.cache_ttl_seconds"
	KeyChunkSize        = "indexing.chunk_size"
	KeyOverlap          = "indexing.overlap"
	KeyContentTypes     = "indexing.content_types"
	KeyForceReindex     = "indexing.force_reindex"
	KeyMaxExecutionSecs = "indexing.max_execution_seconds"
	KeyParallelism      = "indexing.parallelism"
	KeyEmbedProvider    = "embedding.provider"
	KeyEmbedModel       = "embedding.model"
	KeyEmbedBaseURL     = "embedding.base_url"
	KeyEmbedAPIKey      = "embedding.api_key"
	KeyEmbedRPS         = "embedding.requests_per_second"
	KeyEmbedBurst       = "embedding.burst"
	KeyEmbedCacheSize   = "embedding.cache_size"
	KeyTopK             = "retrieval.top_k"
	KeyMinSimilarity    = "retrieval.min_similarity"
	KeyMaxTokens        = "retrieval.max_tokens"
	KeySchedulerEnabled = "scheduler.enabled"
	KeySchedulerMinutes = "scheduler.interval_minutes"
	KeyContentDir       = "content.dir"
)

// EnvOpenAIKey is consulted when embedding.api_key is not configured.
const EnvOpenAIKey = "OPENAI_API_KEY"

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
	kindList
)

// knownKeys maps every supported key to its value type.
var knownKeys = map[string]valueKind{
	KeyBatchSize:        kindInt,
	KeyCacheTTLSeconds:  kindInt,
	KeyChunkSize:        kindInt,
	KeyOverlap:          kindInt,
	KeyContentTypes:     kindList,
	KeyForceReindex:     kindBool,
	KeyMaxExecutionSecs: kindInt,
	KeyParallelism:      kindInt,
	KeyEmbedProvider:    kindString,
	KeyEmbedModel:       kindString,
	KeyEmbedBaseURL:     kindString,
	KeyEmbedAPIKey:      kindString,
	KeyEmbedRPS:         kindFloat,
	KeyEmbedBurst:       kindInt,
	KeyEmbedCacheSize:   kindInt,
	KeyTopK:             kindInt,
	KeyMinSimilarity:    kindFloat,
	KeyMaxTokens:        kindInt,
	KeySchedulerEnabled: kindBool,
	KeySchedulerMinutes: kindInt,
	KeyContentDir:       kindString,
}

// KnownKeys returns every supported configuration key, sorted.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSecretKey reports whether a key's value should be masked in output.
func IsSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key")
}

// SettingsService reads and writes typed settings through a ConfigStore.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
	}
}

// LoadSettings reads settings from store, applies defaults and validates.
// Invalid values fail with a domain.ConfigurationError.
func LoadSettings(store driven.ConfigStore) (domain.Settings, error) {
	return NewSettingsService(store).Get()
}

// Get returns the current settings with defaults applied.
func (s *SettingsService) Get() (domain.Settings, error) {
	return s.build(s.configStore.Get)
}

// Set parses raw for a known key, validates the resulting settings and persists it.
// Lists are comma separated.
func (s *SettingsService) Set(key, raw string) error {
	kind, ok := knownKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidInput, key)
	}

	value, err := parseValue(key, kind, raw)
	if err != nil {
		return err
	}

	lookup := func(k string) (any, bool) {
		if k == key {
			return value, true
		}
		return s.configStore.Get(k)
	}
	if _, err := s.build(lookup); err != nil {
		return err
	}

	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Value returns the configured value for key in display form and whether it is set.
func (s *SettingsService) Value(key string) (string, bool) {
	val, ok := s.configStore.Get(key)
	if !ok {
		return "", false
	}
	return formatValue(val), true
}

// GetSchedulerConfig returns the scheduler configuration derived from settings.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	cfg := domain.DefaultSchedulerConfig()
	settings, err := s.Get()
	if err != nil {
		return cfg
	}

	cfg.Enabled = settings.Scheduler.Enabled
	cfg.TaskConfigs[domain.TaskIDIndexAll] = domain.TaskConfig{
		Enabled:  settings.Scheduler.Enabled,
		Interval: settings.Scheduler.Interval,
	}
	return cfg
}

// build assembles settings from lookup. Keys that are absent keep their defaults.
//
//nolint:gocyclo // Flat sequence of per-key reads
func (s *SettingsService) build(lookup func(string) (any, bool)) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	r := reader{lookup: lookup}

	settings.Indexing.BatchSize = r.intVal(KeyBatchSize, settings.Indexing.BatchSize)
	settings.Indexing.CacheTTL = time.Duration(r.intVal(KeyCacheTTLSeconds, int(settings.Indexing.CacheTTL/time.Second))) * time.Second
	settings.Indexing.ChunkSize = r.intVal(KeyChunkSize, settings.Indexing.ChunkSize)
	settings.Indexing.Overlap = r.intVal(KeyOverlap, settings.Indexing.Overlap)
	settings.Indexing.ForceReindex = r.boolVal(KeyForceReindex, settings.Indexing.ForceReindex)
	settings.Indexing.MaxExecutionTime = time.Duration(r.intVal(KeyMaxExecutionSecs, 0)) * time.Second
	settings.Indexing.Parallelism = r.intVal(KeyParallelism, settings.Indexing.Parallelism)
	if names := r.listVal(KeyContentTypes); len(names) > 0 {
		types, err := domain.ParseContentTypes(names)
		if err != nil {
			return settings, &domain.ConfigurationError{Setting: KeyContentTypes, Value: names, Reason: err.Error()}
		}
		settings.Indexing.ContentTypes = types
	}

	settings.Embedding.Provider = domain.EmbeddingProvider(r.stringVal(KeyEmbedProvider, string(settings.Embedding.Provider)))
	settings.Embedding.Model = r.stringVal(KeyEmbedModel, settings.Embedding.Model)
	settings.Embedding.BaseURL = r.stringVal(KeyEmbedBaseURL, s.defaultBaseURL(settings.Embedding.Provider, settings.Embedding.BaseURL))
	settings.Embedding.APIKey = r.stringVal(KeyEmbedAPIKey, "")
	if settings.Embedding.APIKey == "" && settings.Embedding.Provider == domain.EmbeddingProviderOpenAI {
		settings.Embedding.APIKey = s.getenv(EnvOpenAIKey)
	}
	settings.Embedding.RequestsPerSecond = r.floatVal(KeyEmbedRPS, settings.Embedding.RequestsPerSecond)
	settings.Embedding.Burst = r.intVal(KeyEmbedBurst, settings.Embedding.Burst)
	settings.Embedding.CacheSize = r.intVal(KeyEmbedCacheSize, settings.Embedding.CacheSize)

	settings.Retrieval.TopK = r.intVal(KeyTopK, settings.Retrieval.TopK)
	settings.Retrieval.MinSimilarity = r.floatVal(KeyMinSimilarity, settings.Retrieval.MinSimilarity)
	settings.Retrieval.MaxTokens = r.intVal(KeyMaxTokens, settings.Retrieval.MaxTokens)

	settings.Scheduler.Enabled = r.boolVal(KeySchedulerEnabled, settings.Scheduler.Enabled)
	settings.Scheduler.Interval = time.Duration(r.intVal(KeySchedulerMinutes, int(settings.Scheduler.Interval/time.Minute))) * time.Minute

	settings.ContentDir = r.stringVal(KeyContentDir, settings.ContentDir)

	if r.err != nil {
		return settings, r.err
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// defaultBaseURL keeps the Ollama default only for the Ollama provider.
func (s *SettingsService) defaultBaseURL(provider domain.EmbeddingProvider, fallback string) string {
	if provider == domain.EmbeddingProviderOllama {
		return fallback
	}
	return ""
}

// reader converts raw config values and remembers the first type error.
type reader struct {
	lookup func(string) (any, bool)
	err    error
}

func (r *reader) fail(key string, val any, want string) {
	if r.err == nil {
		r.err = &domain.ConfigurationError{Setting: key, Value: val, Reason: "must be " + want}
	}
}

func (r *reader) stringVal(key, def string) string {
	val, ok := r.lookup(key)
	if !ok {
		return def
	}
	str, ok := val.(string)
	if !ok {
		r.fail(key, val, "a string")
		return def
	}
	if str == "" {
		return def
	}
	return str
}

func (r *reader) intVal(key string, def int) int {
	val, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	r.fail(key, val, "an integer")
	return def
}

func (r *reader) floatVal(key string, def float64) float64 {
	val, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	r.fail(key, val, "a number")
	return def
}

func (r *reader) boolVal(key string, def bool) bool {
	val, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, ok := val.(bool)
	if !ok {
		r.fail(key, val, "true or false")
		return def
	}
	return b
}

func (r *reader) listVal(key string) []string {
	val, ok := r.lookup(key)
	if !ok {
		return nil
	}
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				r.fail(key, val, "a list of strings")
				return nil
			}
			out = append(out, str)
		}
		return out
	case string:
		return splitList(v)
	}
	r.fail(key, val, "a list of strings")
	return nil
}

// parseValue converts command-line text into the stored type for key.
func parseValue(key string, kind valueKind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	invalid := func(want string) error {
		return &domain.ConfigurationError{Setting: key, Value: raw, Reason: "must be " + want}
	}

	switch kind {
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, invalid("an integer")
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, invalid("a number")
		}
		return f, nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, invalid("true or false")
		}
		return b, nil
	case kindList:
		return splitList(raw), nil
	default:
		return raw, nil
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatValue(val any) string {
	switch v := val.(type) {
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
