package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/beautyops/backend/internal/application/ordersync"
	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce/naverfake"
	"github.com/beautyops/backend/internal/interfaces/http/dto"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
)

// bcrypt setting with the minimum cost keeps signing fast
const testSecret = "$2a$04$abcdefghijklmnopqrstuv"

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// ---------------------------------------------------------------------------
// In-memory stores
// ---------------------------------------------------------------------------

type memoryOrderRepository struct {
	mu   sync.Mutex
	rows map[string]integration.OrderRecord
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
	out := m.all()
	var matched []integration.OrderRecord
	for _, row := range out {
		if filter.Channel == "" || row.Channel == filter.Channel {
			matched = append(matched, row)
		}
	}
	return matched, int64(len(matched)), nil
}

// all returns every row sorted by order id
func (m *memoryOrderRepository) all() []integration.OrderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]integration.OrderRecord, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalOrderID < out[j].ExternalOrderID })
	return out
}

type memoryRunLog struct {
	mu   sync.Mutex
	runs []integration.SyncRun
}

func (m *memoryRunLog) Save(_ context.Context, run *integration.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = *run
			return nil
		}
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryRunLog) FindRecent(_ context.Context, channel integration.ChannelCode, limit int) ([]integration.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.SyncRun
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if channel == "" || m.runs[i].Channel == channel {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

type stubLocker struct {
	err error
}

func (l *stubLocker) Acquire(context.Context, integration.ChannelCode, time.Duration) (integration.RunLease, error) {
	if l.err != nil {
		return nil, l.err
	}
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Extend(context.Context, time.Duration) error { return nil }
func (noopLease) Release(context.Context) error               { return nil }

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

func newNaverFeed(t *testing.T, fake *naverfake.Server) *ecommerce.NaverFeed {
	t.Helper()
	cfg := ecommerce.NewNaverConfig()
	cfg.BaseURL = fake.URL
	cfg.RequestsPerSecond = 0
	cfg.DetailWorkers = 1
	feed, err := ecommerce.NewNaverFeed(cfg, nil, nil)
	require.NoError(t, err)
	return feed
}

type syncFixture struct {
	fake   *naverfake.Server
	orders *memoryOrderRepository
	runs   *memoryRunLog
	engine *gin.Engine
}

// newSyncFixture wires a direct-mode orchestrator against a fake Naver API
func newSyncFixture(t *testing.T, opts ...ordersync.Option) *syncFixture {
	t.Helper()
	fake := naverfake.New()
	t.Cleanup(fake.Close)

	f := &syncFixture{
		fake:   fake,
		orders: newMemoryOrderRepository(),
		runs:   &memoryRunLog{},
	}
	opts = append([]ordersync.Option{
		ordersync.WithFeed(newNaverFeed(t, fake)),
		ordersync.WithRunLog(f.runs),
	}, opts...)
	orchestrator := ordersync.NewOrchestrator(ordersync.DefaultConfig(), f.orders, opts...)

	h := NewOrderSyncHandler(orchestrator, WithStreamHeartbeat(time.Hour))
	f.engine = gin.New()
	f.engine.Use(middleware.RequestID())
	f.engine.POST("/order-sync/runs", h.Sync)
	f.engine.POST("/order-sync/runs/stream", h.Stream)
	f.engine.POST("/order-sync/test", h.Test)
	f.engine.GET("/order-sync/runs", h.ListRuns)
	f.engine.GET("/order-sync/channels", h.Channels)
	return f
}

func (f *syncFixture) syncBody(clientID string) map[string]string {
	return map[string]string{
		"channel":      "naver",
		"startDate":    "2024-01-15",
		"endDate":      "2024-01-15",
		"clientId":     clientID,
		"clientSecret": testSecret,
	}
}

func performJSON(engine http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// dataAs re-decodes the data field of a response into out
func dataAs(t *testing.T, resp dto.Response, out any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

// decodeAPI decodes a success body into the typed envelope
func decodeAPI[T any](t *testing.T, w *httptest.ResponseRecorder) APIResponse[T] {
	t.Helper()
	var resp APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// decodeError decodes an error body
func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.NotNil(t, resp.Error, w.Body.String())
	return resp
}
