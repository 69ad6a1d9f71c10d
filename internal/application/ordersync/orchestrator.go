// Package ordersync drives marketplace order synchronization runs: it selects
// the direct or relay pipeline, streams progress, reconciles records and
// keeps the run log.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	applog "github.com/beautyops/backend/internal/infrastructure/logger"
	"github.com/beautyops/backend/internal/infrastructure/telemetry"
)

// Defaults for Config
const (
	DefaultLockTTL        = 30 * time.Minute
	DefaultProgressBuffer = 64
)

const (
	// runLogTimeout bounds run log writes, which outlive cancellation
	runLogTimeout = 5 * time.Second
	// progressEvery is how many reconciled records separate two snapshots
	progressEvery = 50
	// cancelledMessage is the result message of a cancelled run
	cancelledMessage = "sync cancelled"
)

// Config holds orchestrator settings
type Config struct {
	// Location is the channel time zone request dates are interpreted in
	Location *time.Location
	// LockTTL bounds how long a crashed run can keep its channel locked.
	// A live run extends its lock every LockTTL/3.
	LockTTL time.Duration
	// ProgressBuffer is the capacity of each run's progress channel
	ProgressBuffer int
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Location:       integration.DefaultChannelLocation(),
		LockTTL:        DefaultLockTTL,
		ProgressBuffer: DefaultProgressBuffer,
	}
}

func (c *Config) applyDefaults() {
	if c.Location == nil {
		c.Location = integration.DefaultChannelLocation()
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.ProgressBuffer <= 0 {
		c.ProgressBuffer = DefaultProgressBuffer
	}
}

// Metrics receives run-level measurements
type Metrics interface {
	RecordRun(ctx context.Context, result *integration.SyncResult)
	RecordBatchFailure(ctx context.Context, channel integration.ChannelCode)
}

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

// Orchestrator runs syncs. Exactly one mode is active: direct when no relay
// is configured, relay otherwise. There is no fallback between them.
type Orchestrator struct {
	config     Config
	feeds      map[integration.ChannelCode]integration.OrderFeed
	relay      integration.OrderRelay
	orders     integration.OrderRepository
	reconciler *Reconciler
	runs       integration.SyncRunRepository
	archive    integration.PayloadArchive
	locker     integration.RunLocker
	metrics    Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithFeed registers the direct pipeline of one channel
func WithFeed(feed integration.OrderFeed) Option {
	return func(o *Orchestrator) {
		o.feeds[feed.Channel()] = feed
	}
}

// WithRelay switches the orchestrator to relay mode
func WithRelay(relay integration.OrderRelay) Option {
	return func(o *Orchestrator) {
		o.relay = relay
	}
}

// WithRunLog persists every run
func WithRunLog(runs integration.SyncRunRepository) Option {
	return func(o *Orchestrator) {
		o.runs = runs
	}
}

// WithArchive stores raw payloads of reconciled records
func WithArchive(archive integration.PayloadArchive) Option {
	return func(o *Orchestrator) {
		o.archive = archive
	}
}

// WithRunLocker serializes runs per channel
func WithRunLocker(locker integration.RunLocker) Option {
	return func(o *Orchestrator) {
		o.locker = locker
	}
}

// WithMetrics records run metrics
func WithMetrics(metrics Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator writing to orders
func NewOrchestrator(config Config, orders integration.OrderRepository, opts ...Option) *Orchestrator {
	config.applyDefaults()
	o := &Orchestrator{
		config: config,
		feeds:  make(map[integration.ChannelCode]integration.OrderFeed),
		orders: orders,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.reconciler = NewReconciler(orders, o.logger)
	return o
}

// Mode reports the selected transport
func (o *Orchestrator) Mode() integration.SyncMode {
	if o.relay != nil {
		return integration.SyncModeRelay
	}
	return integration.SyncModeDirect
}

// Location returns the channel time zone
func (o *Orchestrator) Location() *time.Location {
	return o.config.Location
}

// Channels lists the channels this orchestrator can sync
func (o *Orchestrator) Channels() []integration.ChannelCode {
	var channels []integration.ChannelCode
	for _, ch := range integration.AllChannels() {
		if o.checkChannel(ch) == nil {
			channels = append(channels, ch)
		}
	}
	return channels
}

func (o *Orchestrator) checkChannel(channel integration.ChannelCode) error {
	if !channel.IsValid() {
		return integration.ErrInvalidChannel
	}
	if o.relay != nil {
		// the relay only exposes the Naver pipeline
		if channel != integration.ChannelNaver {
			return fmt.Errorf("%w: %s (%w)", integration.ErrChannelNotConfigured, channel, integration.ErrRelayUnsupported)
		}
		return nil
	}
	if _, ok := o.feeds[channel]; !ok {
		return fmt.Errorf("%w: %s", integration.ErrChannelNotConfigured, channel)
	}
	return nil
}

// TestConnection signs and exchanges a token for channel, then discards it
func (o *Orchestrator) TestConnection(ctx context.Context, channel integration.ChannelCode, cred integration.Credential) error {
	if err := o.checkChannel(channel); err != nil {
		return err
	}
	if err := cred.Validate(); err != nil {
		return err
	}
	if o.relay != nil {
		return o.relay.TestConnection(ctx, channel, cred)
	}
	_, err := o.feeds[channel].Authenticate(ctx, cred)
	return err
}

// Sync runs to completion and returns the terminal result.
// Request validation, channel and lock failures are returned as errors
// before any upstream call is made.
func (o *Orchestrator) Sync(ctx context.Context, req *integration.SyncRequest) (*integration.SyncResult, error) {
	run, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	for range run.Progress() {
	}
	return run.Wait(), nil
}

// Start validates req, takes the channel lock and launches the run.
// The run stops when ctx is cancelled or Run.Cancel is called.
func (o *Orchestrator) Start(ctx context.Context, req *integration.SyncRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := o.checkChannel(req.Channel); err != nil {
		return nil, err
	}
	window, err := req.Window(o.config.Location)
	if err != nil {
		return nil, err
	}

	var lease integration.RunLease = noLease{}
	if o.locker != nil {
		lease, err = o.locker.Acquire(ctx, req.Channel, o.config.LockTTL)
		if err != nil {
			return nil, err
		}
	}

	runID := uuid.New()
	runCtx, cancel := context.WithCancel(ctx)
	run := newRun(runID.String(), req.Channel, o.config.ProgressBuffer, cancel)

	go o.execute(runCtx, run, runID, *req, window, lease)
	return run, nil
}

// keepLease extends lease every LockTTL/3 until the returned stop func is
// called. stop waits for an in-flight extension to return.
func (o *Orchestrator) keepLease(ctx context.Context, logger *zap.Logger, lease integration.RunLease) (stop func()) {
	interval := o.config.LockTTL / 3
	if interval <= 0 {
		interval = o.config.LockTTL
	}
	bg := context.WithoutCancel(ctx)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				extendCtx, cancel := context.WithTimeout(bg, runLogTimeout)
				err := lease.Extend(extendCtx, o.config.LockTTL)
				cancel()
				if err != nil {
					// another run may now hold the channel
					logger.Error("Failed to extend channel lock", zap.Error(err))
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

// noLease stands in when no RunLocker is configured
type noLease struct{}

func (noLease) Extend(context.Context, time.Duration) error { return nil }
func (noLease) Release(context.Context) error               { return nil }

// RecentRuns returns the latest run log entries, newest first
func (o *Orchestrator) RecentRuns(ctx context.Context, channel integration.ChannelCode, limit int) ([]integration.SyncRun, error) {
	if o.runs == nil {
		return []integration.SyncRun{}, nil
	}
	return o.runs.FindRecent(ctx, channel, limit)
}

// ---------------------------------------------------------------------------
// Run execution
// ---------------------------------------------------------------------------

// runState is the mutable bookkeeping of one run
type runState struct {
	run     *Run
	now     func() time.Time
	started time.Time
	result  *integration.SyncResult
	current int
	total   int
	pages   int
	stats   ReconcileStats
}

func (s *runState) emit(phase integration.SyncPhase, batch, batches int) {
	s.run.publish(integration.SyncProgress{
		RunID:       s.result.RunID,
		Channel:     s.result.Channel,
		Phase:       phase,
		Current:     s.current,
		Total:       s.total,
		Batch:       batch,
		Batches:     batches,
		ElapsedMs:   s.now().Sub(s.started).Milliseconds(),
		SyncedSoFar: s.stats.Written(),
	})
}

// complete fills the terminal fields of the result
func (s *runState) complete(err error, cancelled bool) *integration.SyncResult {
	r := s.result
	r.Created = s.stats.Created
	r.Updated = s.stats.Updated
	r.Failed = s.stats.Failed
	r.Synced = s.stats.Written()
	r.FinishedAt = s.now()
	r.ElapsedMs = r.FinishedAt.Sub(s.started).Milliseconds()

	switch {
	case cancelled:
		r.Success = false
		r.Message = cancelledMessage
		r.Err = fmt.Errorf("%w: %w", integration.ErrSyncCancelled, err)
	case err != nil:
		r.Success = false
		r.Message = err.Error()
		r.Err = err
	default:
		r.Success = true
		r.Message = r.Summary()
	}
	return r
}

func (o *Orchestrator) execute(
	ctx context.Context,
	run *Run,
	runID uuid.UUID,
	req integration.SyncRequest,
	window integration.SyncWindow,
	lease integration.RunLease,
) {
	mode := o.Mode()
	started := o.now()
	ctx, logger := applog.WithRun(ctx, o.logger, run.id, req.Channel.String())
	logger = logger.With(zap.String("mode", mode.String()))

	ctx, span := telemetry.StartSpan(ctx, "ordersync.run",
		telemetry.WithAttribute("run_id", run.id),
		telemetry.WithAttribute("channel", req.Channel.String()),
		telemetry.WithAttribute("mode", mode.String()),
		telemetry.WithAttribute("trigger", string(req.Trigger)),
	)

	st := &runState{
		run:     run,
		now:     o.now,
		started: started,
		result: &integration.SyncResult{
			RunID:     run.id,
			Channel:   req.Channel,
			Mode:      mode,
			Errors:    []string{},
			StartedAt: started,
		},
	}

	stopRenewal := o.keepLease(ctx, logger, lease)

	runLog := integration.NewSyncRun(runID, &req, mode, window, started)
	o.saveRun(ctx, logger, runLog)

	logger.Info("Order sync started",
		zap.String("start_date", window.StartDate()),
		zap.String("end_date", window.EndDate()),
		zap.String("trigger", string(req.Trigger)))

	var err error
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Order sync panicked", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("internal error: %v", p)
		}

		cancelled := err != nil && ctx.Err() != nil
		result := st.complete(err, cancelled)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetOK(span)
		}
		span.End()

		phase := integration.SyncPhaseDone
		if !result.Success {
			phase = integration.SyncPhaseFailed
		}
		st.emit(phase, 0, 0)

		runLog.Finish(result, cancelled)
		o.saveRun(ctx, logger, runLog)

		bg := context.WithoutCancel(ctx)
		if o.metrics != nil {
			o.metrics.RecordRun(bg, result)
		}
		stopRenewal()
		releaseCtx, cancel := context.WithTimeout(bg, runLogTimeout)
		if relErr := lease.Release(releaseCtx); relErr != nil {
			logger.Warn("Failed to release channel lock", zap.Error(relErr))
		}
		cancel()

		fields := []zap.Field{
			zap.Bool("success", result.Success),
			zap.Int("created", result.Created),
			zap.Int("updated", result.Updated),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Int("errors", result.ErrorCount()),
			zap.Int("pages", st.pages),
			zap.Int64("elapsed_ms", result.ElapsedMs),
		}
		switch {
		case cancelled:
			logger.Warn("Order sync cancelled", fields...)
		case err != nil:
			logger.Error("Order sync failed", append(fields, zap.Error(err))...)
		default:
			logger.Info("Order sync completed", fields...)
		}

		run.finish(result)
	}()

	telemetry.WithRunLabels(ctx, req.Channel, mode, func(ctx context.Context) {
		if o.relay != nil {
			err = o.runRelay(ctx, st, req, window, logger)
		} else {
			err = o.runDirect(ctx, st, req, window, logger)
		}
	})
}

// runDirect drives the local pipeline: each page is resolved and reconciled
// before the next one is requested.
func (o *Orchestrator) runDirect(ctx context.Context, st *runState, req integration.SyncRequest, window integration.SyncWindow, logger *zap.Logger) error {
	feed := o.feeds[req.Channel]

	st.emit(integration.SyncPhaseAuthenticating, 0, 0)
	token, err := feed.Authenticate(ctx, req.Credential)
	if err != nil {
		return err
	}

	pager := feed.ChangedOrders(token, window)
	for !pager.Done() {
		st.emit(integration.SyncPhasePaginating, 0, 0)
		ids, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		st.pages++
		st.total += len(ids)
		if len(ids) == 0 {
			continue
		}

		logger.Debug("Changed orders page fetched",
			zap.Int("page", st.pages),
			zap.Int("ids", len(ids)),
			zap.Int("total", st.total))

		st.emit(integration.SyncPhaseResolving, 0, 0)
		resolution := feed.ResolveDetails(ctx, token, ids, func(outcome integration.DetailBatchOutcome) {
			st.current += outcome.Requested
			st.emit(integration.SyncPhaseResolving, outcome.Batch, outcome.Batches)
		})
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := o.reconcile(ctx, st, resolution, logger); err != nil {
			return err
		}
	}
	return nil
}

// runRelay delegates sign, exchange, paginate and resolve to the relay
func (o *Orchestrator) runRelay(ctx context.Context, st *runState, req integration.SyncRequest, window integration.SyncWindow, logger *zap.Logger) error {
	st.emit(integration.SyncPhaseAuthenticating, 0, 0)
	if err := o.relay.TestConnection(ctx, req.Channel, req.Credential); err != nil {
		return err
	}

	st.emit(integration.SyncPhasePaginating, 0, 0)
	resolution, err := o.relay.FetchOrders(ctx, req.Channel, req.Credential, window)
	if err != nil {
		return err
	}
	st.pages = 1
	st.total = len(resolution.Records) + resolution.Skipped
	st.current = st.total
	st.emit(integration.SyncPhaseResolving, 1, 1)

	return o.reconcile(ctx, st, resolution, logger)
}

// reconcile records non-fatal failures of a resolution and writes its records
func (o *Orchestrator) reconcile(ctx context.Context, st *runState, resolution *integration.DetailResolution, logger *zap.Logger) error {
	for _, failure := range resolution.Failures {
		st.result.AddError(failure)
		if o.metrics != nil && errors.Is(failure, integration.ErrDetailBatch) {
			o.metrics.RecordBatchFailure(ctx, st.result.Channel)
		}
	}
	st.result.Skipped += resolution.Skipped

	if len(resolution.Records) == 0 {
		return nil
	}

	st.emit(integration.SyncPhaseReconciling, 0, 0)
	base := st.stats
	stats, err := o.reconciler.Reconcile(ctx, resolution.Records, func(running ReconcileStats) {
		if running.Written()%progressEvery == 0 {
			st.stats = base
			st.stats.add(running)
			st.emit(integration.SyncPhaseReconciling, 0, 0)
		}
	})
	st.stats = base
	st.stats.add(stats)
	for _, recErr := range stats.Errors {
		st.result.AddError(recErr)
	}
	if err != nil {
		return err
	}

	st.emit(integration.SyncPhaseReconciling, 0, 0)
	o.archivePage(ctx, st, resolution.Records, logger)
	return nil
}

// archivePage stores the raw payloads of one reconciled page. Failures are logged only.
func (o *Orchestrator) archivePage(ctx context.Context, st *runState, records []*integration.OrderRecord, logger *zap.Logger) {
	if o.archive == nil {
		return
	}
	err := o.archive.Archive(ctx, integration.PayloadBatch{
		RunID:      st.result.RunID,
		Channel:    st.result.Channel,
		Sequence:   st.pages,
		CapturedAt: o.now(),
		Records:    records,
	})
	if err != nil && !errors.Is(err, integration.ErrArchiveDisabled) {
		logger.Warn("Failed to archive raw payloads",
			zap.Int("page", st.pages),
			zap.Int("records", len(records)),
			zap.Error(err))
	}
}

// saveRun writes the run log even after the run context is cancelled
func (o *Orchestrator) saveRun(ctx context.Context, logger *zap.Logger, run *integration.SyncRun) {
	if o.runs == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runLogTimeout)
	defer cancel()
	if err := o.runs.Save(saveCtx, run); err != nil {
		logger.Warn("Failed to save sync run", zap.String("status", string(run.Status)), zap.Error(err))
	}
}
