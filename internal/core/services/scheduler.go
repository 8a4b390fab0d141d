package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/core/ports/driving"
	"github.com/custodia-labs/shopground/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// DefaultTickInterval is how often the scheduler checks for due tasks.
const DefaultTickInterval = time.Minute

// Scheduler runs periodic indexing passes in the background.
// It is a pure core service with no external control API.
type Scheduler struct {
	config    domain.SchedulerConfig
	store     driven.SchedulerStore
	indexer   driving.Indexer
	indexOpts domain.IndexAllOptions
	tick      time.Duration
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIndexOptions sets the options used for every scheduled full pass.
func WithIndexOptions(opts domain.IndexAllOptions) SchedulerOption {
	return func(s *Scheduler) { s.indexOpts = opts }
}

// WithTickInterval overrides how often due tasks are checked.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithSchedulerClock overrides the clock used for task timing.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	indexer driving.Indexer,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		config:  config,
		store:   store,
		indexer: indexer,
		tick:    DefaultTickInterval,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		logger.Info("scheduler disabled")
	}
	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks drops tasks left behind by older builds and ensures the
// full-index task exists with the configured interval.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	existing, err := s.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	for _, task := range existing {
		if domain.IsKnownTask(task.ID) {
			continue
		}
		logger.Debug("scheduler: removing stale task %s", task.ID)
		if err := s.store.DeleteTask(ctx, task.ID); err != nil {
			return fmt.Errorf("delete stale task %s: %w", task.ID, err)
		}
	}

	cfg := s.config.GetTaskConfig(domain.TaskIDIndexAll)
	cfg.Enabled = cfg.Enabled && s.config.Enabled
	if cfg.Interval <= 0 {
		return fmt.Errorf("%w: %s interval %s", domain.ErrInvalidConfiguration, domain.TaskIDIndexAll, cfg.Interval)
	}
	return s.ensureTask(ctx, domain.TaskIDIndexAll, "Full Index", cfg)
}

// History returns recent full-index results, newest first.
func (s *Scheduler) History(ctx context.Context, limit int) ([]domain.TaskResult, error) {
	if limit <= 0 || limit > domain.MaxTaskHistory {
		limit = domain.MaxTaskHistory
	}
	return s.store.GetTaskHistory(ctx, domain.TaskIDIndexAll, limit)
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  s.now().Add(cfg.Interval),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = s.now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := s.now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task in the background.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: s.now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDIndexAll:
			result.ItemsProcessed, err = s.runIndexAll(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = s.now()
		if err != nil {
			result.Error = err.Error()
			task.LastError = err.Error()
			logger.Warn("scheduler: %s failed: %v", task.ID, err)
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			logger.Warn("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}
		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			logger.Warn("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}
		if pruneErr := s.store.PruneHistory(ctx, domain.MaxTaskHistory); pruneErr != nil {
			logger.Warn("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runIndexAll runs one full indexing pass.
// A pass that finished with per-type errors but made progress counts as a success.
func (s *Scheduler) runIndexAll(ctx context.Context) (int, error) {
	if s.indexer == nil {
		return 0, nil
	}
	if s.indexer.IsProcessing() {
		return 0, domain.ErrIndexingInProgress
	}

	res, err := s.indexer.IndexAllContent(ctx, s.indexOpts)
	if err != nil {
		return 0, err
	}
	if !res.Success {
		msg := "no content type made progress"
		if len(res.Errors) > 0 {
			msg = fmt.Sprintf("%s: %s", res.Errors[0].ContentType, res.Errors[0].Message)
		}
		return res.ItemsProcessed(), fmt.Errorf("index all: %s", msg)
	}
	logger.Info("scheduler: indexed %d items across %d content types",
		res.ItemsProcessed(), len(res.ProcessingSummary))
	return res.ItemsProcessed(), nil
}
