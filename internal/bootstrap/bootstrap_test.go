package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
	"github.com/beautyops/backend/internal/infrastructure/persistence/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.MarketplaceOrderModel{}, &models.OrderSyncRunModel{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Naver: config.NaverConfig{
			BaseURL:  "https://api.commerce.naver.com/external",
			Timezone: "Asia/Seoul",
		},
		Sync:    config.SyncConfig{LockTTL: time.Minute, ProgressBuffer: 8},
		Archive: config.ArchiveConfig{Driver: config.ArchiveDriverNone},
	}
}

func TestNewStack(t *testing.T) {
	t.Run("direct mode without redis", func(t *testing.T) {
		stack, err := NewStack(context.Background(), newTestConfig(), Options{
			DB:     newTestDB(t),
			Logger: zap.NewNop(),
			Meter:  noop.NewMeterProvider().Meter("test"),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = stack.Close(context.Background()) })

		assert.Equal(t, integration.SyncModeDirect, stack.Orchestrator.Mode())
		assert.NotNil(t, stack.Feed)
		assert.Equal(t, []integration.ChannelCode{integration.ChannelNaver}, stack.Orchestrator.Channels())
		assert.Same(t, integration.DefaultChannelLocation(), stack.Orchestrator.Location())
	})

	t.Run("relay mode when proxy is configured", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.Proxy = config.ProxyConfig{URL: "https://relay.example.com", APIKey: "key"}

		stack, err := NewStack(context.Background(), cfg, Options{DB: newTestDB(t)})
		require.NoError(t, err)
		t.Cleanup(func() { _ = stack.Close(context.Background()) })

		assert.Equal(t, integration.SyncModeRelay, stack.Orchestrator.Mode())
		assert.Nil(t, stack.Feed)
	})

	t.Run("invalid relay url", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.Proxy = config.ProxyConfig{URL: "ftp://relay", APIKey: "key"}

		_, err := NewStack(context.Background(), cfg, Options{DB: newTestDB(t)})
		assert.Error(t, err)
	})

	t.Run("database required", func(t *testing.T) {
		_, err := NewStack(context.Background(), newTestConfig(), Options{})
		assert.Error(t, err)
	})
}

func TestStack_Close(t *testing.T) {
	var order []string
	s := &Stack{closers: []func(context.Context) error{
		func(context.Context) error { order = append(order, "locker"); return nil },
		func(context.Context) error { order = append(order, "archive"); return assert.AnError },
	}}

	err := s.Close(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"archive", "locker"}, order)
	assert.NoError(t, s.Close(context.Background()))
}
