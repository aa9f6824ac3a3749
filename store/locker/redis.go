// Package locker provides a Redis-backed stock.Locker for deployments that
// run more than one server against the same database.
package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/stock"
)

const (
	DefaultTTL     = 30 * time.Second
	defaultBackoff = 100 * time.Millisecond
	defaultRetries = 50
)

// Redis serializes item mutations across processes with a redislock key
// per item.
type Redis struct {
	client *redislock.Client
	TTL    time.Duration
	Log    *zap.Logger
}

var _ stock.Locker = (*Redis)(nil)

// New wraps an existing go-redis client.
func New(rdb redis.UniversalClient, ttl time.Duration, log *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: redislock.New(rdb), TTL: ttl, Log: log}
}

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Key is the redis key guarding one item.
func Key(itemID stock.ItemID) string {
	return "stock:item:" + itemID.String()
}

// Lock obtains the item key, retrying with linear backoff until the
// retries or ctx run out.
func (l *Redis) Lock(ctx context.Context, itemID stock.ItemID) (func(), error) {
	key := Key(itemID)
	lock, err := l.client.Obtain(ctx, key, l.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(defaultBackoff), defaultRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		l.Log.Warn("could not obtain item lock", zap.String("key", key), zap.Error(err))
		return nil, stock.ErrLockTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.Log.Warn("failed to release item lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
