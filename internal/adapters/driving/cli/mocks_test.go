package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// mockIndexer is a hand-written driving.Indexer that records calls.
type mockIndexer struct {
	mu sync.Mutex

	allResult  *domain.IndexAllResult
	allErr     error
	lastOpts   domain.IndexAllOptions
	itemResult domain.ItemResult
	lastItem   domain.ContentRecord
	lastForce  bool
	removed    bool
	removeErr  error
	changes    []domain.ContentChange
	stats      domain.Statistics
	runs       []domain.IndexingRun
	batchSize  int
	cacheTTL   time.Duration
	rebuilt    int
}

func (m *mockIndexer) IndexSingleItem(_ context.Context, record domain.ContentRecord, force bool) (domain.ItemResult, error) {
	m.lastItem = record
	m.lastForce = force
	return m.itemResult, nil
}

func (m *mockIndexer) IndexContentType(_ context.Context, ct domain.ContentType, _ bool) (domain.ContentTypeResult, error) {
	return domain.ContentTypeResult{ContentType: ct}, nil
}

func (m *mockIndexer) IndexAllContent(_ context.Context, opts domain.IndexAllOptions) (*domain.IndexAllResult, error) {
	m.lastOpts = opts
	if m.allErr != nil {
		return nil, m.allErr
	}
	if m.allResult == nil {
		return &domain.IndexAllResult{Success: true}, nil
	}
	return m.allResult, nil
}

func (m *mockIndexer) RemoveContent(context.Context, string, domain.ContentType) (bool, error) {
	return m.removed, m.removeErr
}

func (m *mockIndexer) HandleChange(_ context.Context, change domain.ContentChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return nil
}

func (m *mockIndexer) handled() []domain.ContentChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ContentChange(nil), m.changes...)
}

func (m *mockIndexer) Statistics(context.Context) domain.Statistics {
	return m.stats
}

func (m *mockIndexer) ProcessingStatus() []domain.IndexingRun {
	return m.runs
}

func (m *mockIndexer) IsProcessing(...domain.ContentType) bool {
	return len(m.runs) > 0
}

func (m *mockIndexer) SetBatchSize(n int) error {
	m.batchSize = n
	return nil
}

func (m *mockIndexer) SetCacheTTL(ttl time.Duration) error {
	m.cacheTTL = ttl
	return nil
}

func (m *mockIndexer) RebuildVectors(context.Context) (int, error) {
	return m.rebuilt, nil
}

// mockRetriever returns a canned window.
type mockRetriever struct {
	window *domain.ContextWindow
	err    error
	lastRC domain.RetrievalContext
}

func (m *mockRetriever) Retrieve(_ context.Context, query string, rc domain.RetrievalContext) (*domain.ContextWindow, error) {
	m.lastRC = rc
	if m.err != nil {
		return nil, m.err
	}
	if m.window == nil {
		return &domain.ContextWindow{Query: query}, nil
	}
	return m.window, nil
}

// mockSettings keeps raw values in a map and validates nothing but key names.
type mockSettings struct {
	values   map[string]string
	settings domain.Settings
	getErr   error
}

func newMockSettings() *mockSettings {
	return &mockSettings{values: map[string]string{}, settings: domain.DefaultSettings()}
}

func (m *mockSettings) Get() (domain.Settings, error) {
	return m.settings, m.getErr
}

func (m *mockSettings) Set(key, raw string) error {
	if key == "bogus" {
		return fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidInput, key)
	}
	m.values[key] = raw
	return nil
}

func (m *mockSettings) Value(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// mockSource serves fixed records and optionally emits changes.
type mockSource struct {
	ct      domain.ContentType
	records map[string]domain.ContentRecord
	changes []domain.ContentChange
}

func (s *mockSource) Type() domain.ContentType { return s.ct }

func (s *mockSource) ListAll(context.Context) (<-chan domain.ContentRecord, <-chan error) {
	records := make(chan domain.ContentRecord)
	errs := make(chan error)
	close(records)
	close(errs)
	return records, errs
}

func (s *mockSource) GetOne(_ context.Context, id string) (*domain.ContentRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (s *mockSource) Close() error { return nil }

// watchingSource adds change events to mockSource.
type watchingSource struct {
	*mockSource
}

func (s *watchingSource) Watch(context.Context) (<-chan domain.ContentChange, error) {
	ch := make(chan domain.ContentChange, len(s.changes))
	for _, c := range s.changes {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// mockSources is a SourceLookup over a fixed set of sources.
type mockSources struct {
	sources []driven.ContentSource
}

func (m *mockSources) Get(ct domain.ContentType) (driven.ContentSource, error) {
	for _, s := range m.sources {
		if s.Type() == ct {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ct, domain.ErrSourceNotRegistered)
}

func (m *mockSources) Types() []domain.ContentType {
	types := make([]domain.ContentType, len(m.sources))
	for i, s := range m.sources {
		types[i] = s.Type()
	}
	return types
}

// mockScheduler returns from Start immediately.
type mockScheduler struct {
	startErr   error
	started    bool
	stopped    bool
	history    []domain.TaskResult
	historyErr error
}

func (m *mockScheduler) Start(context.Context) error {
	m.started = true
	return m.startErr
}

func (m *mockScheduler) Stop() error {
	m.stopped = true
	return nil
}

func (m *mockScheduler) History(_ context.Context, limit int) ([]domain.TaskResult, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	if len(m.history) > limit {
		return m.history[:limit], nil
	}
	return m.history, nil
}

// mockChecker records the embedding settings it was asked to ping.
type mockChecker struct {
	err     error
	checked *domain.EmbeddingSettings
}

func (m *mockChecker) check(_ context.Context, s *domain.EmbeddingSettings) error {
	m.checked = s
	return m.err
}

var errBoom = errors.New("boom")

// setupTestServices installs fresh mocks and returns them with a cleanup
// that restores the previous services and resets flag state.
func setupTestServices() (*testServices, func()) {
	old := Services{
		Indexer:        indexer,
		Retriever:      retriever,
		Scheduler:      scheduler,
		Settings:       settingsService,
		Sources:        sourceRegistry,
		EmbeddingCheck: embeddingCheck,
	}

	ts := &testServices{
		indexer:   &mockIndexer{},
		retriever: &mockRetriever{},
		scheduler: &mockScheduler{},
		settings:  newMockSettings(),
		sources:   &mockSources{},
		checker:   &mockChecker{},
	}
	Configure(Services{
		Indexer:        ts.indexer,
		Retriever:      ts.retriever,
		Scheduler:      ts.scheduler,
		Settings:       ts.settings,
		Sources:        ts.sources,
		EmbeddingCheck: ts.checker.check,
	})

	return ts, func() {
		Configure(old)
		resetFlags(rootCmd)
		rootCmd.SetArgs(nil)
	}
}

type testServices struct {
	indexer   *mockIndexer
	retriever *mockRetriever
	scheduler *mockScheduler
	settings  *mockSettings
	sources   *mockSources
	checker   *mockChecker
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
	indexTypes, indexForce, indexMaxTime, indexParallel, indexJSON = nil, false, 0, 0, false
	retrieveLang, retrieveType, retrieveMaxTokens, retrieveJSON = "", "", 0, false
	statusJSON = false
	watchTypes = nil
	verbose = false
}
