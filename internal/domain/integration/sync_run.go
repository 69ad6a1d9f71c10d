package integration

import (
	"time"

	"github.com/google/uuid"
)

// SyncRunStatus is the persisted outcome of a run
type SyncRunStatus string

const (
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusSucceeded SyncRunStatus = "succeeded"
	SyncRunStatusFailed    SyncRunStatus = "failed"
	SyncRunStatusCancelled SyncRunStatus = "cancelled"
)

// IsValid returns true if the status is known
func (s SyncRunStatus) IsValid() bool {
	switch s {
	case SyncRunStatusRunning, SyncRunStatusSucceeded, SyncRunStatusFailed, SyncRunStatusCancelled:
		return true
	default:
		return false
	}
}

// SyncRun is the audit log entry of one sync run
type SyncRun struct {
	ID          uuid.UUID
	Channel     ChannelCode
	Mode        SyncMode
	Trigger     SyncTrigger
	Status      SyncRunStatus
	WindowStart time.Time
	WindowEnd   time.Time
	Created     int
	Updated     int
	Skipped     int
	Failed      int
	ErrorCount  int
	Errors      []string
	Message     string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// NewSyncRun starts a run log entry
func NewSyncRun(id uuid.UUID, req *SyncRequest, mode SyncMode, window SyncWindow, startedAt time.Time) *SyncRun {
	return &SyncRun{
		ID:          id,
		Channel:     req.Channel,
		Mode:        mode,
		Trigger:     req.Trigger,
		Status:      SyncRunStatusRunning,
		WindowStart: window.From,
		WindowEnd:   window.To,
		StartedAt:   startedAt,
	}
}

// Finish copies the terminal result into the run
func (r *SyncRun) Finish(result *SyncResult, cancelled bool) {
	switch {
	case result.Success:
		r.Status = SyncRunStatusSucceeded
	case cancelled:
		r.Status = SyncRunStatusCancelled
	default:
		r.Status = SyncRunStatusFailed
	}
	r.Created = result.Created
	r.Updated = result.Updated
	r.Skipped = result.Skipped
	r.Failed = result.Failed
	r.ErrorCount = result.ErrorCount()
	r.Errors = append([]string(nil), result.Errors...)
	r.Message = result.Message
	finished := result.FinishedAt
	r.FinishedAt = &finished
}

// Synced returns the number of rows written by the run
func (r *SyncRun) Synced() int {
	return r.Created + r.Updated
}
