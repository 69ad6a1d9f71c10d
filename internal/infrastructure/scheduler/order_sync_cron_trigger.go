package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
)

// JobScheduler is the part of OrderSyncScheduler the trigger drives
type JobScheduler interface {
	ScheduleLookback(channel integration.ChannelCode, trigger integration.SyncTrigger) (*OrderSyncJob, error)
}

// OrderSyncCronTriggerConfig holds configuration for the interval trigger
type OrderSyncCronTriggerConfig struct {
	// Interval is how often every channel is synced
	Interval time.Duration
	// Channels are the marketplaces synced on each tick
	Channels []integration.ChannelCode
	// RunOnStart fires one round immediately after Start
	RunOnStart bool
}

// OrderSyncCronTriggerConfigFrom builds the trigger settings from scheduler config,
// dropping channel codes that do not parse.
func OrderSyncCronTriggerConfigFrom(cfg config.SchedulerConfig, logger *zap.Logger) OrderSyncCronTriggerConfig {
	c := OrderSyncCronTriggerConfig{Interval: cfg.Interval}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	for _, raw := range cfg.Channels {
		code, err := integration.ParseChannelCode(raw)
		if err != nil {
			logger.Warn("Ignoring unknown scheduler channel", zap.String("channel", raw))
			continue
		}
		c.Channels = append(c.Channels, code)
	}
	return c
}

// OrderSyncCronTrigger periodically schedules lookback syncs for the configured channels
type OrderSyncCronTrigger struct {
	config    OrderSyncCronTriggerConfig
	scheduler JobScheduler
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRunAt time.Time
}

// NewOrderSyncCronTrigger creates a new cron trigger
func NewOrderSyncCronTrigger(config OrderSyncCronTriggerConfig, scheduler JobScheduler, logger *zap.Logger) *OrderSyncCronTrigger {
	return &OrderSyncCronTrigger{
		config:    config,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Start starts the trigger loop
func (c *OrderSyncCronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	if c.config.Interval <= 0 {
		c.mu.Unlock()
		return ErrInvalidConfig
	}
	c.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Order sync trigger started",
		zap.Duration("interval", c.config.Interval),
		zap.Int("channels", len(c.config.Channels)),
	)
	return nil
}

// Stop stops the trigger loop
func (c *OrderSyncCronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Order sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *OrderSyncCronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	if c.config.RunOnStart {
		c.TriggerNow()
	}

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.TriggerNow()
		}
	}
}

// TriggerNow schedules a lookback sync for every configured channel and
// returns the jobs that were queued.
func (c *OrderSyncCronTrigger) TriggerNow() []*OrderSyncJob {
	c.mu.Lock()
	c.lastRunAt = time.Now()
	c.mu.Unlock()

	jobs := make([]*OrderSyncJob, 0, len(c.config.Channels))
	for _, channel := range c.config.Channels {
		job, err := c.scheduler.ScheduleLookback(channel, integration.SyncTriggerScheduler)
		if err != nil {
			c.logger.Error("Failed to schedule order sync",
				zap.String("channel", channel.String()),
				zap.Error(err),
			)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// LastRunAt returns when the trigger last fired, zero if never
func (c *OrderSyncCronTrigger) LastRunAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRunAt
}

var _ JobScheduler = (*OrderSyncScheduler)(nil)
