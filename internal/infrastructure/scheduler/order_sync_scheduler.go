package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
)

// ---------------------------------------------------------------------------
// OrderSyncSchedulerConfig
// ---------------------------------------------------------------------------

// OrderSyncSchedulerConfig holds configuration for order sync scheduler
type OrderSyncSchedulerConfig struct {
	// MaxConcurrentJobs is the number of worker goroutines
	MaxConcurrentJobs int
	// QueueSize is the capacity of the pending job queue
	QueueSize int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retry attempts for failed jobs
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// LookbackDays is how many days before today a scheduled window starts
	LookbackDays int
	// MaxHistory bounds the in-memory job history
	MaxHistory int
	// Location is the channel time zone used to compute "today"
	Location *time.Location
}

// DefaultOrderSyncSchedulerConfig returns default configuration
func DefaultOrderSyncSchedulerConfig() OrderSyncSchedulerConfig {
	return OrderSyncSchedulerConfig{
		MaxConcurrentJobs: 2,
		QueueSize:         32,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     2,
		RetryDelay:        time.Minute,
		LookbackDays:      1,
		MaxHistory:        100,
		Location:          integration.DefaultChannelLocation(),
	}
}

// OrderSyncSchedulerConfigFrom overlays the loaded scheduler settings on the defaults
func OrderSyncSchedulerConfigFrom(cfg config.SchedulerConfig, loc *time.Location) OrderSyncSchedulerConfig {
	c := DefaultOrderSyncSchedulerConfig()
	if cfg.MaxConcurrentJobs > 0 {
		c.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	}
	if cfg.JobTimeout > 0 {
		c.JobTimeout = cfg.JobTimeout
	}
	if cfg.RetryAttempts >= 0 {
		c.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		c.RetryDelay = cfg.RetryDelay
	}
	if cfg.LookbackDays >= 0 {
		c.LookbackDays = cfg.LookbackDays
	}
	if loc != nil {
		c.Location = loc
	}
	return c
}

// Validate validates the configuration
func (c *OrderSyncSchedulerConfig) Validate() error {
	switch {
	case c.MaxConcurrentJobs <= 0:
		return fmt.Errorf("%w: max concurrent jobs must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidConfig)
	case c.JobTimeout <= 0:
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	case c.RetryAttempts < 0:
		return fmt.Errorf("%w: retry attempts cannot be negative", ErrInvalidConfig)
	case c.LookbackDays < 0:
		return fmt.Errorf("%w: lookback days cannot be negative", ErrInvalidConfig)
	case c.MaxHistory <= 0:
		return fmt.Errorf("%w: max history must be positive", ErrInvalidConfig)
	case c.Location == nil:
		return fmt.Errorf("%w: location is required", ErrInvalidConfig)
	}
	return nil
}

// ---------------------------------------------------------------------------
// OrderSyncScheduler
// ---------------------------------------------------------------------------

// OrderSyncScheduler runs order sync jobs on a bounded worker pool
type OrderSyncScheduler struct {
	config   OrderSyncSchedulerConfig
	executor OrderSyncExecutor
	logger   *zap.Logger
	now      func() time.Time

	jobs      chan *OrderSyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   map[uuid.UUID]pendingRetry

	// Job history for monitoring (in-memory, limited size)
	historyMu sync.RWMutex
	history   []*OrderSyncJob
	byID      map[uuid.UUID]*OrderSyncJob
}

// NewOrderSyncScheduler creates a new order sync scheduler
func NewOrderSyncScheduler(config OrderSyncSchedulerConfig, executor OrderSyncExecutor, logger *zap.Logger) (*OrderSyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &OrderSyncScheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		now:      time.Now,
		jobs:     make(chan *OrderSyncJob, config.QueueSize),
		retries:  make(map[uuid.UUID]pendingRetry),
		history:  make([]*OrderSyncJob, 0, config.MaxHistory),
		byID:     make(map[uuid.UUID]*OrderSyncJob),
	}, nil
}

// Start starts the worker pool
func (s *OrderSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Order sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to exit
func (s *OrderSyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, r := range s.retries {
		if r.timer.Stop() {
			r.job.Cancel()
		}
		delete(s.retries, id)
	}
	if s.cancel != nil {
		s.cancel()
	}
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// jobs still queued will never run
		for job := range s.jobs {
			job.Cancel()
		}
		s.logger.Info("Order sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Order sync scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether Start has been called without a matching Stop
func (s *OrderSyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob queues a job without blocking
func (s *OrderSyncScheduler) SubmitJob(job *OrderSyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.track(job)
		s.logger.Debug("Order sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("channel", job.Channel.String()),
			zap.String("trigger", string(job.Trigger)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// ScheduleSync queues a job for channel over window
func (s *OrderSyncScheduler) ScheduleSync(channel integration.ChannelCode, window integration.SyncWindow, trigger integration.SyncTrigger) (*OrderSyncJob, error) {
	if !channel.IsValid() {
		return nil, integration.ErrInvalidChannel
	}
	job := NewOrderSyncJob(channel, window, trigger, s.config.RetryAttempts)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Location returns the time zone job windows are computed in
func (s *OrderSyncScheduler) Location() *time.Location {
	return s.config.Location
}

// LookbackWindow returns the window from LookbackDays before today through today
func (s *OrderSyncScheduler) LookbackWindow() (integration.SyncWindow, error) {
	today := s.now().In(s.config.Location)
	return integration.NewSyncWindow(today.AddDate(0, 0, -s.config.LookbackDays), today, s.config.Location)
}

// ScheduleLookback queues a job for channel over the lookback window
func (s *OrderSyncScheduler) ScheduleLookback(channel integration.ChannelCode, trigger integration.SyncTrigger) (*OrderSyncJob, error) {
	window, err := s.LookbackWindow()
	if err != nil {
		return nil, err
	}
	return s.ScheduleSync(channel, window, trigger)
}

func (s *OrderSyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *OrderSyncScheduler) processJob(ctx context.Context, job *OrderSyncJob, workerID int) {
	job.Start()
	logger := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("channel", job.Channel.String()),
	)
	logger.Info("Processing order sync job",
		zap.String("start_date", job.Window.StartDate()),
		zap.String("end_date", job.Window.EndDate()),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	if err == nil {
		view := job.Snapshot()
		logger.Info("Order sync job completed",
			zap.String("status", string(view.Status)),
			zap.String("run_id", view.RunID),
			zap.Int("created", view.Created),
			zap.Int("updated", view.Updated),
		)
		return
	}

	if ctx.Err() != nil {
		job.Cancel()
		logger.Warn("Order sync job cancelled by shutdown")
		return
	}

	if job.Snapshot().Status != OrderSyncJobStatusFailed {
		job.Fail(err.Error())
	}
	logger.Error("Order sync job failed", zap.Error(err))

	if !isRetryable(err) || !job.ShouldRetry() {
		return
	}
	delay := job.ScheduleRetry(s.config.RetryDelay)
	logger.Info("Order sync job scheduled for retry",
		zap.Int("retry_count", job.Snapshot().RetryCount),
		zap.Duration("delay", delay),
	)
	s.retryAfter(job, delay)
}

// retryAfter resubmits job once delay has passed
func (s *OrderSyncScheduler) retryAfter(job *OrderSyncJob, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		job.Cancel()
		return
	}
	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.retries, job.ID)
		s.mu.Unlock()

		if err := s.SubmitJob(job); err != nil {
			if errors.Is(err, ErrSchedulerNotRunning) {
				job.Cancel()
				return
			}
			job.Fail(err.Error())
			s.logger.Warn("Failed to re-queue order sync job for retry",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	})
	s.retries[job.ID] = pendingRetry{job: job, timer: timer}
}

type pendingRetry struct {
	job   *OrderSyncJob
	timer *time.Timer
}

// track records a job in history, newest first. Callers hold s.mu.
func (s *OrderSyncScheduler) track(job *OrderSyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	if _, ok := s.byID[job.ID]; ok {
		return
	}
	s.history = append([]*OrderSyncJob{job}, s.history...)
	s.byID[job.ID] = job
	if len(s.history) > s.config.MaxHistory {
		for _, old := range s.history[s.config.MaxHistory:] {
			delete(s.byID, old.ID)
		}
		s.history = s.history[:s.config.MaxHistory]
	}
}

// GetJob returns a snapshot of a tracked job
func (s *OrderSyncScheduler) GetJob(id uuid.UUID) (OrderSyncJobView, error) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()
	job, ok := s.byID[id]
	if !ok {
		return OrderSyncJobView{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// GetRecentJobs returns up to limit snapshots, newest first.
// An empty channel matches every channel.
func (s *OrderSyncScheduler) GetRecentJobs(channel integration.ChannelCode, limit int) []OrderSyncJobView {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]OrderSyncJobView, 0, limit)
	for _, job := range s.history {
		if len(result) >= limit {
			break
		}
		if channel != "" && job.Channel != channel {
			continue
		}
		result = append(result, job.Snapshot())
	}
	return result
}
