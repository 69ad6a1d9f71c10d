package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/beautyops/backend/internal/domain/integration"
)

const defaultRunLockPrefix = "ordersync:lock:"

// ErrLockNotHeld is returned by a lease when the lock expired or was taken over
var ErrLockNotHeld = errors.New("cache: sync lock no longer held")

// releaseRunLock deletes the key only if it still holds the caller's token
var releaseRunLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendRunLock resets the expiry only if the key still holds the caller's token
var extendRunLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisRunLocker implements integration.RunLocker using Redis.
// It is suitable for deployments where several instances may start runs.
type RedisRunLocker struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisRunLocker connects to Redis and creates a run locker
func NewRedisRunLocker(cfg RedisConfig) (*RedisRunLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRunLockerWithClient(client, ""), nil
}

// NewRedisRunLockerWithClient creates a locker with an existing Redis client
func NewRedisRunLockerWithClient(client *redis.Client, keyPrefix string) *RedisRunLocker {
	if keyPrefix == "" {
		keyPrefix = defaultRunLockPrefix
	}
	return &RedisRunLocker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes the channel lock with SET NX PX and a random token.
// Returns integration.ErrSyncInProgress when the lock is held elsewhere.
func (l *RedisRunLocker) Acquire(ctx context.Context, channel integration.ChannelCode, ttl time.Duration) (integration.RunLease, error) {
	key := l.keyPrefix + string(channel)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return nil, integration.ErrSyncInProgress
	}
	return &redisRunLease{client: l.client, key: key, token: token}, nil
}

// redisRunLease is a lock taken by RedisRunLocker
type redisRunLease struct {
	client *redis.Client
	key    string
	token  string
}

// Extend resets the key expiry while the token still matches
func (l *redisRunLease) Extend(ctx context.Context, ttl time.Duration) error {
	updated, err := extendRunLock.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend sync lock: %w", err)
	}
	if updated == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Release deletes the key while the token still matches
func (l *redisRunLease) Release(ctx context.Context) error {
	deleted, err := releaseRunLock.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Close closes the Redis client
func (l *RedisRunLocker) Close() error {
	return l.client.Close()
}

// Ensure RedisRunLocker implements RunLocker
var _ integration.RunLocker = (*RedisRunLocker)(nil)
