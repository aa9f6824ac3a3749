package locker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "stock:item:42", Key(42))
}

func TestNew_Defaults(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	l := New(rdb, 0, nil)
	assert.Equal(t, DefaultTTL, l.TTL)
	assert.NotNil(t, l.Log)
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func newMiniLocker(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, ttl, nil), mr
}

func TestLock_MutualExclusion(t *testing.T) {
	// GIVEN: One caller holding the lock on item 7
	// WHEN: A second caller asks for the same item
	// THEN: It times out with ErrLockTimeout, other items stay free, and the
	// key can be taken again once released
	l, mr := newMiniLocker(t, time.Minute)
	ctx := context.Background()

	release, err := l.Lock(ctx, 7)
	require.NoError(t, err)
	assert.True(t, mr.Exists(Key(7)))

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, 7)
	assert.ErrorIs(t, err, stock.ErrLockTimeout)

	releaseOther, err := l.Lock(ctx, 8)
	require.NoError(t, err)
	releaseOther()

	release()
	assert.False(t, mr.Exists(Key(7)))

	again, err := l.Lock(ctx, 7)
	require.NoError(t, err)
	again()
}

func TestLock_ReleaseAfterCallerCancelled(t *testing.T) {
	l, mr := newMiniLocker(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	release, err := l.Lock(ctx, 3)
	require.NoError(t, err)
	cancel()
	release()

	assert.False(t, mr.Exists(Key(3)))
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	l, mr := newMiniLocker(t, 10*time.Second)
	ctx := context.Background()

	release, err := l.Lock(ctx, 5)
	require.NoError(t, err)
	mr.FastForward(11 * time.Second)

	next, err := l.Lock(ctx, 5)
	require.NoError(t, err)

	release() // the expired holder must not free the new owner's key
	assert.True(t, mr.Exists(Key(5)))
	next()
	assert.False(t, mr.Exists(Key(5)))
}
