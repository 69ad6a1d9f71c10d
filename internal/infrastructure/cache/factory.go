package cache

import (
	"fmt"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RunLockerFactory creates run lockers based on configuration
type RunLockerFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RunLockerFactoryOption is a functional option for configuring the factory
type RunLockerFactoryOption func(*RunLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RunLockerFactoryOption {
	return func(f *RunLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory locker when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) RunLockerFactoryOption {
	return func(f *RunLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRunLockerFactory creates a new factory
func NewRunLockerFactory(cfg config.RedisConfig, opts ...RunLockerFactoryOption) *RunLockerFactory {
	f := &RunLockerFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLocker creates a Redis-based run locker
func (f *RunLockerFactory) CreateRedisLocker() (*RedisRunLocker, error) {
	locker, err := NewRedisRunLocker(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis run locker: %w", err)
	}
	return locker, nil
}

// CreateLocker tries Redis first and falls back to an in-memory locker
// when allowed. The in-memory locker does not serialize runs across instances.
func (f *RunLockerFactory) CreateLocker() (integration.RunLocker, error) {
	if f.redisConfig.Host != "" {
		locker, err := f.CreateRedisLocker()
		if err == nil {
			f.logger.Info("using Redis run locker")
			return locker, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("Redis required for run locking but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory run locker. "+
			"Runs for the same channel are only serialized within this instance.",
			zap.Error(err),
		)
		return NewInMemoryRunLocker(), nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for run locking but no host is configured")
	}
	f.logger.Info("using in-memory run locker")
	return NewInMemoryRunLocker(), nil
}
