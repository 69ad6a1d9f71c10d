package ordersync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/beautyops/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// In-memory order store
// ---------------------------------------------------------------------------

type memoryOrderRepository struct {
	mu         sync.Mutex
	rows       map[string]integration.OrderRecord
	failCreate func(record *integration.OrderRecord) error
}

func newMemoryOrderRepository() *memoryOrderRepository {
	return &memoryOrderRepository{rows: make(map[string]integration.OrderRecord)}
}

func (m *memoryOrderRepository) FindByChannelAndOrderID(_ context.Context, channel integration.ChannelCode, orderID string) (*integration.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[string(channel)+":"+orderID]
	if !ok {
		return nil, integration.ErrOrderNotFound
	}
	return &row, nil
}

func (m *memoryOrderRepository) Create(_ context.Context, record *integration.OrderRecord) error {
	if m.failCreate != nil {
		if err := m.failCreate(record); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[record.Key()]; ok {
		return fmt.Errorf("duplicate key %s", record.Key())
	}
	m.rows[record.Key()] = *record
	return nil
}

func (m *memoryOrderRepository) Update(_ context.Context, record *integration.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[record.Key()]; !ok {
		return integration.ErrOrderNotFound
	}
	m.rows[record.Key()] = *record
	return nil
}

func (m *memoryOrderRepository) CountByChannel(_ context.Context, channel integration.ChannelCode) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.Channel == channel {
			n++
		}
	}
	return n, nil
}

func (m *memoryOrderRepository) List(_ context.Context, filter integration.OrderFilter) ([]integration.OrderRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.OrderRecord
	for _, row := range m.rows {
		if filter.Channel == "" || row.Channel == filter.Channel {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalOrderID < out[j].ExternalOrderID })
	return out, int64(len(out)), nil
}

func (m *memoryOrderRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ---------------------------------------------------------------------------
// Mock order repository
// ---------------------------------------------------------------------------

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByChannelAndOrderID(ctx context.Context, channel integration.ChannelCode, orderID string) (*integration.OrderRecord, error) {
	args := m.Called(ctx, channel, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderRecord), args.Error(1)
}

func (m *MockOrderRepository) Create(ctx context.Context, record *integration.OrderRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockOrderRepository) Update(ctx context.Context, record *integration.OrderRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockOrderRepository) CountByChannel(ctx context.Context, channel integration.ChannelCode) (int64, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, filter integration.OrderFilter) ([]integration.OrderRecord, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]integration.OrderRecord), args.Get(1).(int64), args.Error(2)
}

// ---------------------------------------------------------------------------
// Run log, archive, locker and metrics stubs
// ---------------------------------------------------------------------------

type memoryRunLog struct {
	mu   sync.Mutex
	runs map[string]integration.SyncRun
}

func newMemoryRunLog() *memoryRunLog {
	return &memoryRunLog{runs: make(map[string]integration.SyncRun)}
}

func (m *memoryRunLog) Save(_ context.Context, run *integration.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID.String()] = *run
	return nil
}

func (m *memoryRunLog) FindRecent(_ context.Context, channel integration.ChannelCode, _ int) ([]integration.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.SyncRun
	for _, run := range m.runs {
		if channel == "" || run.Channel == channel {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *memoryRunLog) get(id string) integration.SyncRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

type recordingArchive struct {
	mu      sync.Mutex
	batches []integration.PayloadBatch
	err     error
}

func (a *recordingArchive) Archive(_ context.Context, batch integration.PayloadBatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, batch)
	return a.err
}

type stubLocker struct {
	mu        sync.Mutex
	err       error
	extendErr error
	acquired  int
	extended  int
	released  int
}

func (l *stubLocker) Acquire(_ context.Context, _ integration.ChannelCode, _ time.Duration) (integration.RunLease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return stubLease{l}, nil
}

func (l *stubLocker) counts() (extended, released int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extended, l.released
}

type stubLease struct{ l *stubLocker }

func (s stubLease) Extend(context.Context, time.Duration) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.extended++
	return s.l.extendErr
}

func (s stubLease) Release(context.Context) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.released++
	return nil
}

type recordingMetrics struct {
	mu            sync.Mutex
	runs          []integration.SyncResult
	batchFailures int
}

func (m *recordingMetrics) RecordRun(_ context.Context, result *integration.SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *result)
}

func (m *recordingMetrics) RecordBatchFailure(_ context.Context, _ integration.ChannelCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchFailures++
}

// ---------------------------------------------------------------------------
// Scripted feed and relay
// ---------------------------------------------------------------------------

func stubRecord(channel integration.ChannelCode, id string) *integration.OrderRecord {
	return &integration.OrderRecord{
		Channel:         channel,
		ExternalOrderID: id,
		ProductName:     "product " + id,
		Quantity:        1,
		UnitPrice:       decimal.NewFromInt(1000),
		TotalPrice:      decimal.NewFromInt(1000),
		Status:          "PAYED",
	}
}

// scriptedFeed serves fixed pages. After the last scripted page, Next blocks
// until ctx is cancelled when hang is set.
type scriptedFeed struct {
	channel integration.ChannelCode
	pages   [][]integration.OrderIdentifier
	hang    bool
	authErr error

	mu    sync.Mutex
	calls int
}

func (f *scriptedFeed) Channel() integration.ChannelCode { return f.channel }

func (f *scriptedFeed) Authenticate(_ context.Context, _ integration.Credential) (*integration.AccessToken, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &integration.AccessToken{Value: "t", ObtainedAt: time.Now()}, nil
}

func (f *scriptedFeed) ChangedOrders(_ *integration.AccessToken, _ integration.SyncWindow) integration.ChangedOrderPager {
	return &scriptedPager{feed: f}
}

func (f *scriptedFeed) ResolveDetails(_ context.Context, _ *integration.AccessToken, ids []integration.OrderIdentifier, onBatch func(integration.DetailBatchOutcome)) *integration.DetailResolution {
	res := &integration.DetailResolution{}
	for _, id := range ids {
		res.Records = append(res.Records, stubRecord(f.channel, string(id)))
	}
	if onBatch != nil {
		onBatch(integration.DetailBatchOutcome{Batch: 1, Batches: 1, Requested: len(ids), Resolved: len(ids)})
	}
	return res
}

func (f *scriptedFeed) nextCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type scriptedPager struct {
	feed *scriptedFeed
	page int
}

func (p *scriptedPager) Done() bool {
	return !p.feed.hang && p.page >= len(p.feed.pages)
}

func (p *scriptedPager) Next(ctx context.Context) ([]integration.OrderIdentifier, error) {
	p.feed.mu.Lock()
	p.feed.calls++
	p.feed.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.page < len(p.feed.pages) {
		ids := p.feed.pages[p.page]
		p.page++
		return ids, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubRelay struct {
	mu         sync.Mutex
	calls      []string
	testErr    error
	fetchErr   error
	resolution *integration.DetailResolution
}

func (r *stubRelay) TestConnection(_ context.Context, _ integration.ChannelCode, _ integration.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "test")
	return r.testErr
}

func (r *stubRelay) FetchOrders(_ context.Context, _ integration.ChannelCode, _ integration.Credential, _ integration.SyncWindow) (*integration.DetailResolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "sync")
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.resolution, nil
}

func identifiers(ids []string) []integration.OrderIdentifier {
	out := make([]integration.OrderIdentifier, len(ids))
	for i, id := range ids {
		out[i] = integration.OrderIdentifier(id)
	}
	return out
}
