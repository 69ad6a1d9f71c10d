package integration

import (
	"fmt"
	"time"
)

// MaxDisplayedErrors caps SyncResult.Errors; the remainder is only counted
const MaxDisplayedErrors = 10

// ---------------------------------------------------------------------------
// SyncMode and SyncPhase
// ---------------------------------------------------------------------------

// SyncMode is the transport a deployment uses to reach the marketplace
type SyncMode string

const (
	// SyncModeDirect calls the marketplace from this process
	SyncModeDirect SyncMode = "direct"
	// SyncModeRelay delegates the whole pipeline to a relay with a static egress IP
	SyncModeRelay SyncMode = "relay"
)

// String returns the string representation of SyncMode
func (m SyncMode) String() string {
	return string(m)
}

// SyncPhase is a state of the sync state machine
type SyncPhase string

const (
	SyncPhaseIdle           SyncPhase = "idle"
	SyncPhaseAuthenticating SyncPhase = "authenticating"
	SyncPhasePaginating     SyncPhase = "paginating"
	SyncPhaseResolving      SyncPhase = "resolving"
	SyncPhaseReconciling    SyncPhase = "reconciling"
	SyncPhaseDone           SyncPhase = "done"
	SyncPhaseFailed         SyncPhase = "failed"
)

// IsTerminal returns true for done and failed
func (p SyncPhase) IsTerminal() bool {
	return p == SyncPhaseDone || p == SyncPhaseFailed
}

// String returns the string representation of SyncPhase
func (p SyncPhase) String() string {
	return string(p)
}

// ---------------------------------------------------------------------------
// SyncWindow
// ---------------------------------------------------------------------------

// SyncWindow is an inclusive date range expressed as [From, To) instants:
// local midnight of the start date up to local midnight after the end date.
type SyncWindow struct {
	From time.Time
	To   time.Time
}

// NewSyncWindow builds a window from two calendar dates in loc
func NewSyncWindow(startDate, endDate time.Time, loc *time.Location) (SyncWindow, error) {
	if startDate.IsZero() || endDate.IsZero() {
		return SyncWindow{}, fmt.Errorf("%w: start and end dates are required", ErrInvalidDateRange)
	}
	if loc == nil {
		loc = DefaultChannelLocation()
	}
	from := midnight(startDate, loc)
	last := midnight(endDate, loc)
	if from.After(last) {
		return SyncWindow{}, fmt.Errorf("%w: start date %s is after end date %s",
			ErrInvalidDateRange, from.Format(time.DateOnly), last.Format(time.DateOnly))
	}
	return SyncWindow{From: from, To: last.AddDate(0, 0, 1)}, nil
}

// ParseSyncWindow parses YYYY-MM-DD dates in loc
func ParseSyncWindow(startDate, endDate string, loc *time.Location) (SyncWindow, error) {
	if loc == nil {
		loc = DefaultChannelLocation()
	}
	start, err := time.ParseInLocation(time.DateOnly, startDate, loc)
	if err != nil {
		return SyncWindow{}, fmt.Errorf("%w: start date: %v", ErrInvalidDateRange, err)
	}
	end, err := time.ParseInLocation(time.DateOnly, endDate, loc)
	if err != nil {
		return SyncWindow{}, fmt.Errorf("%w: end date: %v", ErrInvalidDateRange, err)
	}
	return NewSyncWindow(start, end, loc)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	// Keep the calendar date the caller meant, not the instant converted to loc.
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// StartDate returns the first calendar date of the window
func (w SyncWindow) StartDate() string {
	return w.From.Format(time.DateOnly)
}

// EndDate returns the last calendar date of the window (inclusive)
func (w SyncWindow) EndDate() string {
	return w.To.AddDate(0, 0, -1).Format(time.DateOnly)
}

// Location returns the time zone of the window bounds
func (w SyncWindow) Location() *time.Location {
	return w.From.Location()
}

// Days splits the window into consecutive one-day windows
func (w SyncWindow) Days() []SyncWindow {
	var days []SyncWindow
	for from := w.From; from.Before(w.To); from = from.AddDate(0, 0, 1) {
		days = append(days, SyncWindow{From: from, To: from.AddDate(0, 0, 1)})
	}
	return days
}

// ---------------------------------------------------------------------------
// SyncRequest
// ---------------------------------------------------------------------------

// SyncTrigger records what started a run
type SyncTrigger string

const (
	SyncTriggerAPI       SyncTrigger = "api"
	SyncTriggerScheduler SyncTrigger = "scheduler"
	SyncTriggerCLI       SyncTrigger = "cli"
)

// SyncRequest asks for one channel to be synchronized over a date range
type SyncRequest struct {
	Channel    ChannelCode
	StartDate  time.Time
	EndDate    time.Time
	Credential Credential
	Trigger    SyncTrigger
}

// Validate checks the request before any network call is made
func (r *SyncRequest) Validate() error {
	if !r.Channel.IsValid() {
		return ErrInvalidChannel
	}
	if err := r.Credential.Validate(); err != nil {
		return err
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidDateRange)
	}
	sy, sm, sd := r.StartDate.Date()
	ey, em, ed := r.EndDate.Date()
	start := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	if start.After(end) {
		return fmt.Errorf("%w: start date is after end date", ErrInvalidDateRange)
	}
	if r.Trigger == "" {
		r.Trigger = SyncTriggerAPI
	}
	return nil
}

// Window converts the request dates into a SyncWindow in loc
func (r *SyncRequest) Window(loc *time.Location) (SyncWindow, error) {
	return NewSyncWindow(r.StartDate, r.EndDate, loc)
}

// ---------------------------------------------------------------------------
// SyncProgress and SyncResult
// ---------------------------------------------------------------------------

// SyncProgress is one snapshot of a running sync
type SyncProgress struct {
	RunID       string      `json:"runId"`
	Channel     ChannelCode `json:"channel"`
	Phase       SyncPhase   `json:"phase"`
	Current     int         `json:"current"`
	Total       int         `json:"total"`
	Batch       int         `json:"batch,omitempty"`
	Batches     int         `json:"batches,omitempty"`
	ElapsedMs   int64       `json:"elapsedMs"`
	SyncedSoFar int         `json:"syncedSoFar"`
}

// SyncResult is the terminal summary of one run
type SyncResult struct {
	RunID        string      `json:"runId"`
	Channel      ChannelCode `json:"channel"`
	Mode         SyncMode    `json:"mode"`
	Success      bool        `json:"success"`
	Message      string      `json:"message,omitempty"`
	Synced       int         `json:"synced"`
	Created      int         `json:"created"`
	Updated      int         `json:"updated"`
	Skipped      int         `json:"skipped"`
	Failed       int         `json:"failed"`
	Errors       []string    `json:"errors"`
	HiddenErrors int         `json:"hiddenErrors,omitempty"`
	ElapsedMs    int64       `json:"elapsedMs"`
	StartedAt    time.Time   `json:"startedAt"`
	FinishedAt   time.Time   `json:"finishedAt"`
	// Err is the error that ended an unsuccessful run
	Err error `json:"-"`
}

// AddError records a non-fatal error, keeping at most MaxDisplayedErrors messages
func (r *SyncResult) AddError(err error) {
	if err == nil {
		return
	}
	if len(r.Errors) < MaxDisplayedErrors {
		r.Errors = append(r.Errors, err.Error())
		return
	}
	r.HiddenErrors++
}

// ErrorCount returns the number of errors recorded, shown or not
func (r *SyncResult) ErrorCount() int {
	return len(r.Errors) + r.HiddenErrors
}

// Summary returns a one-line description suitable for operators
func (r *SyncResult) Summary() string {
	if !r.Success {
		return fmt.Sprintf("sync failed after %dms: %s (synced %d)", r.ElapsedMs, r.Message, r.Synced)
	}
	s := fmt.Sprintf("synced %d orders (%d created, %d updated, %d skipped) in %dms",
		r.Synced, r.Created, r.Updated, r.Skipped, r.ElapsedMs)
	if n := r.ErrorCount(); n > 0 {
		s += fmt.Sprintf(", %d errors", n)
	}
	return s
}
