package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/core/ports/driving"
)

// --- Mock implementations for scheduler testing ---

// mockSchedulerStore implements driven.SchedulerStore for testing.
type mockSchedulerStore struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.ScheduledTask
	results  map[string][]domain.TaskResult
	saveErr  error
	listErr  error
	getErr   error
	pruneErr error
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		tasks:   make(map[string]*domain.ScheduledTask),
		results: make(map[string][]domain.TaskResult),
	}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	task, exists := m.tasks[taskID]
	if !exists {
		return nil, nil
	}
	// Return a copy
	taskCopy := *task
	return &taskCopy, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if task == nil {
		return domain.ErrInvalidInput
	}
	taskCopy := *task
	m.tasks[task.ID] = &taskCopy
	return nil
}

func (m *mockSchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

func (m *mockSchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil {
		return domain.ErrInvalidInput
	}
	m.results[result.TaskID] = append(m.results[result.TaskID], *result)
	return nil
}

func (m *mockSchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.results[taskID]
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *mockSchedulerStore) PruneHistory(_ context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pruneErr != nil {
		return m.pruneErr
	}
	for id, results := range m.results {
		if len(results) > keep {
			m.results[id] = results[len(results)-keep:]
		}
	}
	return nil
}

// mockIndexer implements driving.Indexer for scheduler testing.
type mockIndexer struct {
	mu         sync.Mutex
	calls      int
	opts       domain.IndexAllOptions
	result     *domain.IndexAllResult
	err        error
	processing bool
}

func (m *mockIndexer) IndexSingleItem(_ context.Context, _ domain.ContentRecord, _ bool) (domain.ItemResult, error) {
	return domain.ItemResult{}, nil
}

func (m *mockIndexer) IndexContentType(_ context.Context, ct domain.ContentType, _ bool) (domain.ContentTypeResult, error) {
	return domain.ContentTypeResult{ContentType: ct}, nil
}

func (m *mockIndexer) IndexAllContent(_ context.Context, opts domain.IndexAllOptions) (*domain.IndexAllResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.IndexAllResult{Success: true}, nil
}

func (m *mockIndexer) RemoveContent(_ context.Context, _ string, _ domain.ContentType) (bool, error) {
	return false, nil
}

func (m *mockIndexer) HandleChange(_ context.Context, _ domain.ContentChange) error { return nil }

func (m *mockIndexer) Statistics(_ context.Context) domain.Statistics { return domain.Statistics{} }

func (m *mockIndexer) ProcessingStatus() []domain.IndexingRun { return nil }

func (m *mockIndexer) IsProcessing(_ ...domain.ContentType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}

func (m *mockIndexer) SetBatchSize(_ int) error { return nil }

func (m *mockIndexer) SetCacheTTL(_ time.Duration) error { return nil }

func (m *mockIndexer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Ensure mocks implement interfaces
var _ driven.SchedulerStore = (*mockSchedulerStore)(nil)
var _ driving.Indexer = (*mockIndexer)(nil)

// ==================== Scheduler Tests ====================

func TestNewScheduler(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	store := newMockSchedulerStore()

	scheduler := NewScheduler(config, store, &mockIndexer{})

	require.NotNil(t, scheduler)
	assert.Equal(t, config.Enabled, scheduler.config.Enabled)
	assert.Equal(t, DefaultTickInterval, scheduler.tick)
}

func TestScheduler_StartStop(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	store := newMockSchedulerStore()

	scheduler := NewScheduler(config, store, &mockIndexer{})

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	cancel()
	err := scheduler.Stop()
	require.NoError(t, err)

	wg.Wait()
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), &mockIndexer{})

	// Stop without starting should be safe
	err := scheduler.Stop()
	require.NoError(t, err)
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), &mockIndexer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	// Second start returns immediately
	err := scheduler.Start(context.Background())
	assert.NoError(t, err)

	cancel()
	scheduler.Stop() //nolint:errcheck
	wg.Wait()
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	tests := []struct {
		name        string
		config      domain.SchedulerConfig
		wantEnabled bool
		wantErr     bool
	}{
		{
			name:        "defaults",
			config:      domain.DefaultSchedulerConfig(),
			wantEnabled: true,
		},
		{
			name: "master switch off",
			config: domain.SchedulerConfig{
				Enabled: false,
				TaskConfigs: map[string]domain.TaskConfig{
					domain.TaskIDIndexAll: {Enabled: true, Interval: time.Hour},
				},
			},
			wantEnabled: false,
		},
		{
			name:    "missing interval",
			config:  domain.SchedulerConfig{Enabled: true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockSchedulerStore()
			scheduler := NewScheduler(tt.config, store, &mockIndexer{})
			ctx := context.Background()

			err := scheduler.initialiseTasks(ctx)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)

			task, err := store.GetTask(ctx, domain.TaskIDIndexAll)
			require.NoError(t, err)
			require.NotNil(t, task)
			assert.Equal(t, "Full Index", task.Name)
			assert.Equal(t, tt.wantEnabled, task.Enabled)
		})
	}
}

func TestScheduler_EnsureTask_UpdateInterval(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, &mockIndexer{},
		WithSchedulerClock(func() time.Time { return now }))
	ctx := context.Background()

	taskCfg := domain.TaskConfig{Enabled: true, Interval: time.Hour}
	require.NoError(t, scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg))

	taskCfg.Interval = 2 * time.Hour
	require.NoError(t, scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg))

	task, err := store.GetTask(ctx, "test-task")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
	assert.Equal(t, now.Add(2*time.Hour), task.NextRun)
}

func TestScheduler_RunIndexAll(t *testing.T) {
	opts := domain.IndexAllOptions{ContentTypes: []domain.ContentType{"faq"}, Parallelism: 2}

	tests := []struct {
		name      string
		indexer   *mockIndexer
		wantItems int
		wantErr   string
	}{
		{
			name: "success",
			indexer: &mockIndexer{result: &domain.IndexAllResult{
				Success: true,
				ProcessingSummary: map[domain.ContentType]domain.ContentTypeResult{
					"faq": {ContentType: "faq", ItemsProcessed: 7},
				},
			}},
			wantItems: 7,
		},
		{
			name: "no progress",
			indexer: &mockIndexer{result: &domain.IndexAllResult{
				Errors: []domain.TypeError{{ContentType: "faq", Message: "source down"}},
			}},
			wantErr: "faq: source down",
		},
		{
			name:    "store unavailable",
			indexer: &mockIndexer{err: domain.ErrStoreUnavailable},
			wantErr: domain.ErrStoreUnavailable.Error(),
		},
		{
			name:    "already indexing",
			indexer: &mockIndexer{processing: true},
			wantErr: domain.ErrIndexingInProgress.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), tt.indexer,
				WithIndexOptions(opts))

			items, err := scheduler.runIndexAll(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantItems, items)
			assert.Equal(t, opts, tt.indexer.opts)
		})
	}
}

func TestScheduler_RunIndexAll_NilIndexer(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil)

	_, err := scheduler.runIndexAll(context.Background())
	require.NoError(t, err)
}

func TestScheduler_CheckAndRunDueTasks(t *testing.T) {
	store := newMockSchedulerStore()
	indexer := &mockIndexer{}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, indexer)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDIndexAll,
		Name:     "Full Index",
		Interval: time.Hour,
		NextRun:  now.Add(-time.Minute),
		Enabled:  true,
	}))
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       "disabled",
		Interval: time.Hour,
		Enabled:  false,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	assert.Equal(t, 1, indexer.callCount())

	task, err := store.GetTask(ctx, domain.TaskIDIndexAll)
	require.NoError(t, err)
	assert.Empty(t, task.LastError)
	assert.False(t, task.LastSuccess.IsZero())
	assert.True(t, task.NextRun.After(now))

	history, err := store.GetTaskHistory(ctx, domain.TaskIDIndexAll, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
}

func TestScheduler_RunTask_RecordsFailure(t *testing.T) {
	store := newMockSchedulerStore()
	indexer := &mockIndexer{err: domain.ErrStoreUnavailable}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, indexer)
	ctx := context.Background()

	task := &domain.ScheduledTask{ID: domain.TaskIDIndexAll, Interval: time.Hour, Enabled: true}
	scheduler.runTask(ctx, task)
	scheduler.wg.Wait()

	saved, err := store.GetTask(ctx, domain.TaskIDIndexAll)
	require.NoError(t, err)
	assert.Contains(t, saved.LastError, "store unavailable")

	history, err := store.GetTaskHistory(ctx, domain.TaskIDIndexAll, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
}

func TestScheduler_PrunesHistory(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, &mockIndexer{})
	ctx := context.Background()

	for i := 0; i < domain.MaxTaskHistory+5; i++ {
		scheduler.runTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDIndexAll, Interval: time.Hour, Enabled: true})
		scheduler.wg.Wait()
	}

	history, err := store.GetTaskHistory(ctx, domain.TaskIDIndexAll, 1000)
	require.NoError(t, err)
	assert.Len(t, history, domain.MaxTaskHistory)
}

func TestScheduler_RunTask_UnknownTaskID(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil)
	ctx := context.Background()

	// Logs and returns without recording anything
	scheduler.runTask(ctx, &domain.ScheduledTask{ID: "unknown-task", Name: "Unknown", Enabled: true})
	scheduler.wg.Wait()

	history, err := store.GetTaskHistory(ctx, "unknown-task", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestScheduler_InitialiseTasks_RemovesStaleTasks(t *testing.T) {
	store := newMockSchedulerStore()
	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: "sync_all", Name: "Sync", Interval: time.Hour}))
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDIndexAll, Name: "Full Index", Interval: time.Hour}))

	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, &mockIndexer{})
	require.NoError(t, scheduler.initialiseTasks(ctx))

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskIDIndexAll, tasks[0].ID)
}

func TestScheduler_InitialiseTasks_ListError(t *testing.T) {
	store := newMockSchedulerStore()
	store.listErr = assert.AnError
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, &mockIndexer{})

	err := scheduler.initialiseTasks(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestScheduler_History(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, &mockIndexer{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordResult(ctx, &domain.TaskResult{TaskID: domain.TaskIDIndexAll, Success: true}))
	}
	require.NoError(t, store.RecordResult(ctx, &domain.TaskResult{TaskID: "other"}))

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"limited", 2, 2},
		{"zero means all kept", 0, 3},
		{"above retention", domain.MaxTaskHistory + 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, err := scheduler.History(ctx, tt.limit)
			require.NoError(t, err)
			assert.Len(t, history, tt.want)
			for _, r := range history {
				assert.Equal(t, domain.TaskIDIndexAll, r.TaskID)
			}
		})
	}
}
