package telemetry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/beautyops/backend/internal/domain/integration"
)

// MeterName is the instrumentation scope of the sync metrics
const MeterName = "github.com/beautyops/backend/ordersync"

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Attribute keys
const (
	attrChannel    = "channel"
	attrMode       = "mode"
	attrOutcome    = "outcome"
	attrOperation  = "operation"
	attrStatusCode = "status_code"
)

// SyncMetrics records run and upstream call metrics for the orchestrator
type SyncMetrics struct {
	runsTotal          *Counter
	ordersCreated      *Counter
	ordersUpdated      *Counter
	ordersSkipped      *Counter
	ordersFailed       *Counter
	batchFailures      *Counter
	runDuration        *Histogram
	upstreamCallTime   *Histogram
	upstreamCallsTotal *Counter
}

// NewSyncMetrics creates all sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &SyncMetrics{}
	var err error
	if m.runsTotal, err = NewCounter(meter, "ordersync.runs", "Finished sync runs by outcome", "{run}"); err != nil {
		return nil, err
	}
	if m.ordersCreated, err = NewCounter(meter, "ordersync.orders.created", "Orders inserted by sync runs", "{order}"); err != nil {
		return nil, err
	}
	if m.ordersUpdated, err = NewCounter(meter, "ordersync.orders.updated", "Orders updated by sync runs", "{order}"); err != nil {
		return nil, err
	}
	if m.ordersSkipped, err = NewCounter(meter, "ordersync.orders.skipped", "Identifiers that produced no record", "{order}"); err != nil {
		return nil, err
	}
	if m.ordersFailed, err = NewCounter(meter, "ordersync.orders.failed", "Records that could not be persisted", "{order}"); err != nil {
		return nil, err
	}
	if m.batchFailures, err = NewCounter(meter, "ordersync.detail_batch.failures", "Detail chunks skipped after an upstream error", "{batch}"); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(meter, "ordersync.run.duration", "Wall time of sync runs", "s",
		1, 5, 15, 30, 60, 120, 300, 600, 1800); err != nil {
		return nil, err
	}
	if m.upstreamCallTime, err = NewHistogram(meter, "ordersync.upstream.duration", "Marketplace API call latency", "s",
		0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30); err != nil {
		return nil, err
	}
	if m.upstreamCallsTotal, err = NewCounter(meter, "ordersync.upstream.calls", "Marketplace API calls by status", "{call}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRun records the terminal result of a run
func (m *SyncMetrics) RecordRun(ctx context.Context, result *integration.SyncResult) {
	if result == nil {
		return
	}
	channel := attribute.String(attrChannel, string(result.Channel))
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}

	m.runsTotal.Inc(ctx, channel,
		attribute.String(attrMode, string(result.Mode)),
		attribute.String(attrOutcome, outcome))
	m.ordersCreated.Add(ctx, int64(result.Created), channel)
	m.ordersUpdated.Add(ctx, int64(result.Updated), channel)
	m.ordersSkipped.Add(ctx, int64(result.Skipped), channel)
	m.ordersFailed.Add(ctx, int64(result.Failed), channel)
	m.runDuration.RecordDuration(ctx, time.Duration(result.ElapsedMs)*time.Millisecond,
		channel, attribute.String(attrOutcome, outcome))
}

// RecordBatchFailure counts one skipped detail chunk
func (m *SyncMetrics) RecordBatchFailure(ctx context.Context, channel integration.ChannelCode) {
	m.batchFailures.Inc(ctx, attribute.String(attrChannel, string(channel)))
}

// UpstreamCallObserver returns a hook for NaverClient.SetCallObserver.
// A zero status code means the request never got a response.
func (m *SyncMetrics) UpstreamCallObserver(channel integration.ChannelCode) func(ctx context.Context, operation string, statusCode int, duration time.Duration) {
	ch := attribute.String(attrChannel, string(channel))
	return func(ctx context.Context, operation string, statusCode int, duration time.Duration) {
		status := "error"
		if statusCode > 0 {
			status = strconv.Itoa(statusCode)
		}
		op := attribute.String(attrOperation, operation)
		m.upstreamCallTime.RecordDuration(ctx, duration, ch, op)
		m.upstreamCallsTotal.Inc(ctx, ch, op, attribute.String(attrStatusCode, status))
	}
}
