package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/bootstrap"
	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce/naverfake"
	"github.com/beautyops/backend/internal/infrastructure/persistence"
	"github.com/beautyops/backend/internal/infrastructure/scheduler"
	"github.com/beautyops/backend/internal/interfaces/http/dto"
	"github.com/beautyops/backend/internal/interfaces/http/handler"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
	"github.com/beautyops/backend/internal/interfaces/http/router"
	"github.com/beautyops/backend/tests/testutil"
)

const testSecret = "$2a$04$abcdefghijklmnopqrstuv"

type pipeline struct {
	db     *TestDB
	fake   *naverfake.Server
	cfg    *config.Config
	stack  *bootstrap.Stack
	engine *gin.Engine
}

// newPipeline wires the server stack against PostgreSQL and a fake Naver API
func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	fake := naverfake.New()
	t.Cleanup(fake.Close)

	p := &pipeline{
		db:   NewTestDB(t),
		fake: fake,
		cfg: &config.Config{
			Naver: config.NaverConfig{
				BaseURL:       fake.URL,
				Timezone:      "Asia/Seoul",
				ClientID:      fake.ClientID,
				ClientSecret:  testSecret,
				DetailWorkers: 2,
			},
			Sync:    config.SyncConfig{LockTTL: time.Minute, ProgressBuffer: 64},
			Archive: config.ArchiveConfig{Driver: config.ArchiveDriverNone},
		},
	}

	stack, err := bootstrap.NewStack(context.Background(), p.cfg, bootstrap.Options{DB: p.db.DB, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close(context.Background()) })
	p.stack = stack

	middleware.SetupValidator()
	p.engine = gin.New()
	p.engine.Use(middleware.RequestID())
	r := router.NewRouter(p.engine, router.WithAPIVersion("v1"))
	r.Register(router.OrderSyncRoutes(handler.NewOrderSyncHandler(stack.Orchestrator), nil)).
		Register(router.OrderRoutes(handler.NewOrderHandler(stack.Orders, stack.Orchestrator.Location(), nil)))
	r.Setup()
	return p
}

func (p *pipeline) syncBody(clientID string) map[string]string {
	return map[string]string{
		"channel":      "naver",
		"startDate":    "2024-01-15",
		"endDate":      "2024-01-15",
		"clientId":     clientID,
		"clientSecret": testSecret,
	}
}

func TestOrderSync_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	p := newPipeline(t)
	p.fake.SetPages(naverfake.IDs("a", 3), naverfake.IDs("b", 2))

	t.Run("first run creates every order", func(t *testing.T) {
		w := testutil.Perform(t, p.engine, http.MethodPost, "/api/v1/order-sync/runs", p.syncBody(p.fake.ClientID))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		result := testutil.Decode[integration.SyncResult](t, w).Data
		assert.True(t, result.Success)
		assert.Equal(t, 5, result.Created)
		assert.Equal(t, 0, result.Updated)
		assert.Equal(t, 5, result.Synced)
	})

	t.Run("second run updates changed prices", func(t *testing.T) {
		p.fake.SetUnitPrice(12000)

		w := testutil.Perform(t, p.engine, http.MethodPost, "/api/v1/order-sync/runs", p.syncBody(p.fake.ClientID))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		result := testutil.Decode[integration.SyncResult](t, w).Data
		assert.Equal(t, 0, result.Created)
		assert.Equal(t, 5, result.Updated)

		order, err := p.stack.Orders.FindByChannelAndOrderID(context.Background(), integration.ChannelNaver, "a0001")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(12000).Equal(order.UnitPrice))
		assert.True(t, decimal.NewFromInt(24000).Equal(order.TotalPrice))
		assert.Equal(t, "2024-01-15", order.OrderDate.Format(time.DateOnly))
	})

	t.Run("failed authentication writes nothing", func(t *testing.T) {
		w := testutil.Perform(t, p.engine, http.MethodPost, "/api/v1/order-sync/runs", p.syncBody("intruder"))
		testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, dto.ErrCodeUpstreamAuth)
		assert.NotContains(t, w.Body.String(), testSecret)

		count, err := p.stack.Orders.CountByChannel(context.Background(), integration.ChannelNaver)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
	})

	t.Run("orders are listed by date", func(t *testing.T) {
		w := testutil.Perform(t, p.engine, http.MethodGet,
			"/api/v1/orders?channel=naver&start_date=2024-01-15&end_date=2024-01-15&page_size=2", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		env := testutil.Decode[[]dto.OrderResponse](t, w)
		assert.Len(t, env.Data, 2)
		require.NotNil(t, env.Meta)
		assert.Equal(t, int64(5), env.Meta.Total)
		assert.Equal(t, 3, env.Meta.TotalPages)

		w = testutil.Perform(t, p.engine, http.MethodGet,
			"/api/v1/orders?channel=naver&start_date=2024-01-16&end_date=2024-01-16", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(0), testutil.Decode[[]dto.OrderResponse](t, w).Meta.Total)
	})

	t.Run("run log records every run newest first", func(t *testing.T) {
		w := testutil.Perform(t, p.engine, http.MethodGet, "/api/v1/order-sync/runs?channel=naver", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		runs := testutil.Decode[[]dto.SyncRunResponse](t, w).Data
		require.Len(t, runs, 3)
		assert.Equal(t, integration.SyncRunStatusFailed, runs[0].Status)
		assert.Equal(t, integration.SyncRunStatusSucceeded, runs[1].Status)
		assert.Equal(t, 5, runs[1].Updated)
		assert.Equal(t, 5, runs[2].Created)
		for _, run := range runs {
			assert.Equal(t, "2024-01-15", run.StartDate)
			assert.Equal(t, integration.SyncTriggerAPI, run.Trigger)
		}
	})
}

func TestOrderRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	loc := integration.DefaultChannelLocation()
	repo := persistence.NewGormOrderRepository(testDB.DB, loc)
	ctx := context.Background()

	record := func(id string, day int) *integration.OrderRecord {
		at := time.Date(2024, 1, day, 23, 30, 0, 0, loc)
		return &integration.OrderRecord{
			Channel:         integration.ChannelNaver,
			ExternalOrderID: id,
			OrderDate:       at,
			OrderDateTime:   at,
			ProductName:     "수분 크림",
			Quantity:        1,
			UnitPrice:       decimal.NewFromInt(15000),
			TotalPrice:      decimal.NewFromInt(15000),
			Status:          "PAYED",
			RawPayload:      json.RawMessage(`{"productOrderId":"` + id + `"}`),
		}
	}

	t.Run("Create and Find", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, record("p-1", 15)))

		found, err := repo.FindByChannelAndOrderID(ctx, integration.ChannelNaver, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-15", found.OrderDate.Format(time.DateOnly), "late evening stays on the local date")
		assert.JSONEq(t, `{"productOrderId":"p-1"}`, string(found.RawPayload))

		_, err = repo.FindByChannelAndOrderID(ctx, integration.ChannelCafe24, "p-1")
		assert.ErrorIs(t, err, integration.ErrOrderNotFound)
	})

	t.Run("uniqueness key is enforced", func(t *testing.T) {
		err := repo.Create(ctx, record("p-1", 15))
		require.Error(t, err)
		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, "23505", pgErr.Code)
	})

	t.Run("Update", func(t *testing.T) {
		updated := record("p-1", 15)
		updated.Quantity = 3
		updated.TotalPrice = decimal.NewFromInt(45000)
		require.NoError(t, repo.Update(ctx, updated))

		found, err := repo.FindByChannelAndOrderID(ctx, integration.ChannelNaver, "p-1")
		require.NoError(t, err)
		assert.Equal(t, 3, found.Quantity)
		assert.True(t, decimal.NewFromInt(45000).Equal(found.TotalPrice))

		assert.ErrorIs(t, repo.Update(ctx, record("missing", 15)), integration.ErrOrderNotFound)
	})

	t.Run("List and CountByChannel", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, record("p-2", 16)))
		require.NoError(t, repo.Create(ctx, record("p-3", 17)))

		count, err := repo.CountByChannel(ctx, integration.ChannelNaver)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		orders, total, err := repo.List(ctx, integration.OrderFilter{
			Channel: integration.ChannelNaver,
			From:    time.Date(2024, 1, 16, 0, 0, 0, 0, loc),
			To:      time.Date(2024, 1, 17, 0, 0, 0, 0, loc),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, orders, 2)
	})
}

func TestScheduledSync_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	p := newPipeline(t)
	p.fake.SetPages(naverfake.IDs("s", 4))
	loc := p.stack.Orchestrator.Location()

	executor := scheduler.NewOrchestratorExecutor(p.stack.Orchestrator, scheduler.CredentialsFromConfig(p.cfg), zap.NewNop())
	sched, err := scheduler.NewOrderSyncScheduler(
		scheduler.OrderSyncSchedulerConfigFrom(config.SchedulerConfig{RetryAttempts: 0}, loc),
		executor, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	window, err := integration.ParseSyncWindow("2024-01-15", "2024-01-15", loc)
	require.NoError(t, err)
	job, err := sched.ScheduleSync(integration.ChannelNaver, window, integration.SyncTriggerScheduler)
	require.NoError(t, err)

	var view scheduler.OrderSyncJobView
	done := testutil.WaitForCondition(t, func() bool {
		view, err = sched.GetJob(job.ID)
		return err == nil && view.CompletedAt != nil
	}, 30*time.Second, 50*time.Millisecond)
	require.True(t, done, "job did not complete")

	assert.Equal(t, scheduler.OrderSyncJobStatusSuccess, view.Status)
	assert.Equal(t, 4, view.Created)

	runs, err := p.stack.Runs.FindRecent(context.Background(), integration.ChannelNaver, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, integration.SyncTriggerScheduler, runs[0].Trigger)
	assert.Equal(t, integration.SyncRunStatusSucceeded, runs[0].Status)
}
