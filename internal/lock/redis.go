// Package lock provides a Redis-backed session lock so that several
// phishdrill instances can share one store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a session.
	DefaultTTL = 15 * time.Second

	// DefaultRetryInterval is the wait between acquisition attempts.
	DefaultRetryInterval = 25 * time.Millisecond

	keyPrefix = "phishdrill:lock:"
)

// ErrNotHeld is logged when a release finds the lock expired or taken over.
var ErrNotHeld = errors.New("lock not held")

// release deletes the key only if it still holds our token.
var release = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements simulation.Locker with SET NX and a per-holder
// token.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// Option configures a RedisLocker.
type Option func(*RedisLocker)

// WithTTL sets the lock expiry.
func WithTTL(d time.Duration) Option {
	return func(l *RedisLocker) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithRetryInterval sets the polling interval while waiting.
func WithRetryInterval(d time.Duration) Option {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker creates a locker on rdb.
func NewRedisLocker(rdb *redis.Client, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		rdb:    rdb,
		ttl:    DefaultTTL,
		retry:  DefaultRetryInterval,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect parses a redis:// URL and returns a locker on a new client.
func Connect(ctx context.Context, url string, opts ...Option) (*RedisLocker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	l := NewRedisLocker(redis.NewClient(opt), opts...)
	if err := l.Ping(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Lock waits until key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := keyPrefix + key
	token := uuid.New().String()

	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock SETNX: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.unlock(k, token) })
	}, nil
}

func (l *RedisLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := release.Run(ctx, l.rdb, []string{key}, token).Int()
	switch {
	case err != nil:
		l.logger.Warn("failed to release lock", "key", key, "error", err)
	case n == 0:
		l.logger.Warn("failed to release lock", "key", key, "error", ErrNotHeld)
	}
}

// Ping checks the connection.
func (l *RedisLocker) Ping(ctx context.Context) error {
	if err := l.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
