package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beautyops/backend/internal/domain/integration"
)

// OrderSyncJobStatus represents the status of an order sync job
type OrderSyncJobStatus string

const (
	OrderSyncJobStatusPending   OrderSyncJobStatus = "PENDING"
	OrderSyncJobStatusRunning   OrderSyncJobStatus = "RUNNING"
	OrderSyncJobStatusSuccess   OrderSyncJobStatus = "SUCCESS"
	OrderSyncJobStatusPartial   OrderSyncJobStatus = "PARTIAL"
	OrderSyncJobStatusFailed    OrderSyncJobStatus = "FAILED"
	OrderSyncJobStatusCancelled OrderSyncJobStatus = "CANCELLED"
)

// IsTerminal returns true once the job will not run again
func (s OrderSyncJobStatus) IsTerminal() bool {
	switch s {
	case OrderSyncJobStatusSuccess, OrderSyncJobStatusPartial, OrderSyncJobStatusFailed, OrderSyncJobStatusCancelled:
		return true
	default:
		return false
	}
}

// maxRetryDelay caps the exponential backoff
const maxRetryDelay = 30 * time.Minute

// OrderSyncJob is one scheduled sync of a channel over a window.
// Fields are guarded by mu; read them through Snapshot.
type OrderSyncJob struct {
	mu sync.Mutex

	ID          uuid.UUID
	Channel     integration.ChannelCode
	Window      integration.SyncWindow
	Trigger     integration.SyncTrigger
	Status      OrderSyncJobStatus
	Error       string
	RunID       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	Created int
	Updated int
	Skipped int
	Failed  int
	Errors  int
}

// NewOrderSyncJob creates a pending job
func NewOrderSyncJob(channel integration.ChannelCode, window integration.SyncWindow, trigger integration.SyncTrigger, maxRetries int) *OrderSyncJob {
	return &OrderSyncJob{
		ID:         uuid.New(),
		Channel:    channel,
		Window:     window,
		Trigger:    trigger,
		Status:     OrderSyncJobStatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *OrderSyncJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.Status = OrderSyncJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete copies a run result into the job. A successful run that recorded
// errors is partial.
func (j *OrderSyncJob) Complete(result *integration.SyncResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.CompletedAt = &now
	j.RunID = result.RunID
	j.Created = result.Created
	j.Updated = result.Updated
	j.Skipped = result.Skipped
	j.Failed = result.Failed
	j.Errors = result.ErrorCount()

	switch {
	case !result.Success:
		j.Status = OrderSyncJobStatusFailed
		j.Error = result.Message
	case j.Errors > 0 || j.Failed > 0:
		j.Status = OrderSyncJobStatusPartial
	default:
		j.Status = OrderSyncJobStatusSuccess
	}
}

// Fail marks the job as failed
func (j *OrderSyncJob) Fail(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.Status = OrderSyncJobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// Cancel marks the job as cancelled
func (j *OrderSyncJob) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.Status = OrderSyncJobStatusCancelled
	j.CompletedAt = &now
}

// ShouldRetry returns true if the job failed and has retries left
func (j *OrderSyncJob) ShouldRetry() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status == OrderSyncJobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry moves the job back to pending and returns the backoff delay:
// baseDelay * 2^(retryCount-1), capped at 30 minutes.
func (j *OrderSyncJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.RetryCount++
	j.Status = OrderSyncJobStatusPending
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	next := time.Now().Add(delay)
	j.NextRetryAt = &next
	j.CompletedAt = nil
	return delay
}

// OrderSyncJobView is an immutable copy of a job for callers outside the scheduler
type OrderSyncJobView struct {
	ID          uuid.UUID               `json:"id"`
	Channel     integration.ChannelCode `json:"channel"`
	StartDate   string                  `json:"startDate"`
	EndDate     string                  `json:"endDate"`
	Trigger     integration.SyncTrigger `json:"trigger"`
	Status      OrderSyncJobStatus      `json:"status"`
	Error       string                  `json:"error,omitempty"`
	RunID       string                  `json:"runId,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	StartedAt   *time.Time              `json:"startedAt,omitempty"`
	CompletedAt *time.Time              `json:"completedAt,omitempty"`
	RetryCount  int                     `json:"retryCount"`
	NextRetryAt *time.Time              `json:"nextRetryAt,omitempty"`
	Created     int                     `json:"created"`
	Updated     int                     `json:"updated"`
	Skipped     int                     `json:"skipped"`
	Failed      int                     `json:"failed"`
	Errors      int                     `json:"errors"`
}

// Snapshot returns a consistent copy of the job
func (j *OrderSyncJob) Snapshot() OrderSyncJobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return OrderSyncJobView{
		ID:          j.ID,
		Channel:     j.Channel,
		StartDate:   j.Window.StartDate(),
		EndDate:     j.Window.EndDate(),
		Trigger:     j.Trigger,
		Status:      j.Status,
		Error:       j.Error,
		RunID:       j.RunID,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		RetryCount:  j.RetryCount,
		NextRetryAt: j.NextRetryAt,
		Created:     j.Created,
		Updated:     j.Updated,
		Skipped:     j.Skipped,
		Failed:      j.Failed,
		Errors:      j.Errors,
	}
}
