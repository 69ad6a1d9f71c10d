package integration

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Marketplace ports
// ---------------------------------------------------------------------------

// ChangedOrderPager walks the changed-orders feed one page at a time.
// It is created per run and is not safe for concurrent use.
type ChangedOrderPager interface {
	// Next fetches the next page of identifiers. It must not be called once Done reports true.
	Next(ctx context.Context) ([]OrderIdentifier, error)
	// Done reports whether the feed has been exhausted
	Done() bool
}

// DetailBatchOutcome describes one resolved (or skipped) detail chunk
type DetailBatchOutcome struct {
	Batch     int
	Batches   int
	Requested int
	Resolved  int
	Err       error
}

// DetailResolution is the flat output of resolving a list of identifiers
type DetailResolution struct {
	Records  []*OrderRecord
	Skipped  int
	Failures []error
}

// OrderFeed is the direct marketplace pipeline for one channel
type OrderFeed interface {
	// Channel returns the channel this feed serves
	Channel() ChannelCode

	// Authenticate signs the credential and exchanges it for a run-scoped token
	Authenticate(ctx context.Context, cred Credential) (*AccessToken, error)

	// ChangedOrders returns a fresh pager over window
	ChangedOrders(token *AccessToken, window SyncWindow) ChangedOrderPager

	// ResolveDetails fetches detail records in bounded chunks.
	// Chunk failures are reported in the resolution, never returned.
	// onBatch is called once per chunk and may be nil.
	ResolveDetails(ctx context.Context, token *AccessToken, ids []OrderIdentifier, onBatch func(DetailBatchOutcome)) *DetailResolution
}

// OrderRelay runs the whole pipeline remotely on a host with a static egress IP
type OrderRelay interface {
	// TestConnection signs and exchanges a token on the relay, discarding it
	TestConnection(ctx context.Context, channel ChannelCode, cred Credential) error

	// FetchOrders runs the full pipeline on the relay and maps the returned orders
	FetchOrders(ctx context.Context, channel ChannelCode, cred Credential, window SyncWindow) (*DetailResolution, error)
}

// ---------------------------------------------------------------------------
// Storage ports
// ---------------------------------------------------------------------------

// OrderRepository persists OrderRecords keyed by (channel, external order id)
type OrderRepository interface {
	// FindByChannelAndOrderID returns ErrOrderNotFound when no row exists
	FindByChannelAndOrderID(ctx context.Context, channel ChannelCode, orderID string) (*OrderRecord, error)
	Create(ctx context.Context, record *OrderRecord) error
	Update(ctx context.Context, record *OrderRecord) error
	CountByChannel(ctx context.Context, channel ChannelCode) (int64, error)
	List(ctx context.Context, filter OrderFilter) ([]OrderRecord, int64, error)
}

// SyncRunRepository persists the run audit log
type SyncRunRepository interface {
	Save(ctx context.Context, run *SyncRun) error
	FindRecent(ctx context.Context, channel ChannelCode, limit int) ([]SyncRun, error)
}

// PayloadBatch is the raw upstream data captured by one reconciled page
type PayloadBatch struct {
	RunID      string
	Channel    ChannelCode
	Sequence   int
	CapturedAt time.Time
	Records    []*OrderRecord
}

// PayloadArchive stores verbatim upstream payloads for audit
type PayloadArchive interface {
	Archive(ctx context.Context, batch PayloadBatch) error
}

// RunLocker serializes runs for the same channel.
// Acquire returns ErrSyncInProgress when another holder owns the lock.
type RunLocker interface {
	Acquire(ctx context.Context, channel ChannelCode, ttl time.Duration) (RunLease, error)
}

// RunLease is a held channel lock. It expires unless extended.
type RunLease interface {
	// Extend resets the expiry to ttl from now. It fails once the lease
	// expired or was taken over.
	Extend(ctx context.Context, ttl time.Duration) error
	// Release gives the lock up
	Release(ctx context.Context) error
}
