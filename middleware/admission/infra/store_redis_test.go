package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisStore_IncrementAndPeek(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	mr.SetTime(clock.Now())
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()
	start := clock.Now()

	_, ok, err := s.Peek(ctx, "auth-login:ip:203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("admission:counter:auth-login:ip:203.0.113.7"), "peek must not create records")

	for i := int64(1); i <= 3; i++ {
		st, err := s.IncrementAndGet(ctx, "auth-login:ip:203.0.113.7", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, st.Count)
		assert.True(t, start.Equal(st.WindowStart))
		assert.Equal(t, time.Minute, st.Window)
		clock.Advance(time.Second)
		mr.SetTime(clock.Now())
	}

	st, ok, err := s.Peek(ctx, "auth-login:ip:203.0.113.7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), st.Count)
	assert.Equal(t, time.Minute, mr.TTL("admission:counter:auth-login:ip:203.0.113.7"))
}

func TestRedisStore_ElapsedWindowResets(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	mr.SetTime(clock.Now())
	s := NewRedisCounterStore(rdb, WithRedisTTLFactor(3))
	ctx := context.Background()

	_, err := s.IncrementAndGet(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = s.IncrementAndGet(ctx, "k", time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	mr.SetTime(clock.Now())
	_, ok, err := s.Peek(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "elapsed window peeks as empty")

	st, err := s.IncrementAndGet(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Count)
	assert.True(t, clock.Now().Equal(st.WindowStart))
}

// Dois gateways com relógios locais divergentes compartilham o mesmo teto:
// a janela é decidida pelo relógio do Redis.
func TestRedisStore_NodesShareOneWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	mr.SetTime(clock.Now())

	other := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = other.Close() })

	nodeA := NewRedisCounterStore(rdb)
	nodeB := NewRedisCounterStore(other)
	ctx := context.Background()

	var counts []int64
	incr := func(s *RedisCounterStore, n int) {
		for i := 0; i < n; i++ {
			st, err := s.IncrementAndGet(ctx, "auth-login:ip:203.0.113.7", time.Minute)
			require.NoError(t, err)
			counts = append(counts, st.Count)
			clock.Advance(time.Second)
			mr.SetTime(clock.Now())
		}
	}
	incr(nodeA, 5)
	incr(nodeB, 1)
	incr(nodeA, 5)

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, counts)

	st, ok, err := nodeB.Peek(ctx, "auth-login:ip:203.0.113.7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(11), st.Count)
}

func TestRedisStore_PeekUsesServerClock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	mr.SetTime(clock.Now())
	s := NewRedisCounterStore(rdb, WithRedisTTLFactor(5))
	ctx := context.Background()

	_, err := s.IncrementAndGet(ctx, "k", time.Minute)
	require.NoError(t, err)

	// o processo local não mudou de hora; só o Redis avançou
	mr.SetTime(clock.Now().Add(61 * time.Second))
	_, ok, err := s.Peek(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_ConcurrentIncrements(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb, WithCounterPrefix("test:"))
	ctx := context.Background()

	const n = 60
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementAndGet(ctx, "hot", time.Hour); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	st, ok, err := s.Peek(ctx, "hot")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(n), st.Count)
}

func TestRedisStore_UnavailableIsDistinguishable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)
	mr.Close()

	_, err := s.IncrementAndGet(context.Background(), "k", time.Minute)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, _, err = s.Peek(context.Background(), "k")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	var nilStore *RedisCounterStore
	_, err = nilStore.IncrementAndGet(context.Background(), "k", time.Minute)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestRedisStore_CorruptRecordIsUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisCounterStore(rdb)
	mr.HSet("admission:counter:k", "count", "x", "start", "1", "window", "1000")

	_, _, err := s.Peek(context.Background(), "k")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
