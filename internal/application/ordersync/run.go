package ordersync

import (
	"context"

	"github.com/beautyops/backend/internal/domain/integration"
)

// Run is a handle on one in-flight sync run
type Run struct {
	id       string
	channel  integration.ChannelCode
	progress chan integration.SyncProgress
	done     chan struct{}
	cancel   context.CancelFunc
	result   *integration.SyncResult
}

func newRun(id string, channel integration.ChannelCode, buffer int, cancel context.CancelFunc) *Run {
	return &Run{
		id:       id,
		channel:  channel,
		progress: make(chan integration.SyncProgress, buffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

// ID returns the run id
func (r *Run) ID() string {
	return r.id
}

// Channel returns the channel being synchronized
func (r *Run) Channel() integration.ChannelCode {
	return r.channel
}

// Progress returns the snapshot stream. It is closed after the terminal
// snapshot, before Wait returns. A slow reader loses the oldest snapshots,
// never the newest.
func (r *Run) Progress() <-chan integration.SyncProgress {
	return r.progress
}

// Cancel stops the run at its next suspension point
func (r *Run) Cancel() {
	r.cancel()
}

// Done is closed once the result is available
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run ends and returns its terminal result
func (r *Run) Wait() *integration.SyncResult {
	<-r.done
	return r.result
}

// publish delivers p without ever blocking the run. Sends are serialized by
// the run, so the retry loop always finds a free slot.
func (r *Run) publish(p integration.SyncProgress) {
	for {
		select {
		case r.progress <- p:
			return
		default:
		}
		select {
		case <-r.progress:
		default:
		}
	}
}

// finish closes the stream and releases waiters, in that order
func (r *Run) finish(result *integration.SyncResult) {
	r.result = result
	close(r.progress)
	close(r.done)
	r.cancel()
}
