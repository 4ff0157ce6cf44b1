package infra

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newThrottle(t *testing.T, clock *fakeClock, opts ...LogThrottleOption) (*LogThrottle, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	lt := NewLogThrottle(logger, opts...)
	lt.now = clock.Now
	return lt, &buf
}

func TestLogThrottle_BurstThenSuppress(t *testing.T) {
	clock := newFakeClock()
	lt, buf := newThrottle(t, clock, WithLogInterval(10*time.Second), WithLogBurst(2))
	ctx := context.Background()

	assert.True(t, lt.Warn(ctx, "store:auth-login", "counter store unavailable"))
	assert.True(t, lt.Warn(ctx, "store:auth-login", "counter store unavailable"))
	for i := 0; i < 5; i++ {
		assert.False(t, lt.Warn(ctx, "store:auth-login", "counter store unavailable"))
	}
	assert.Equal(t, 2, strings.Count(buf.String(), "counter store unavailable"))

	clock.Advance(10 * time.Second)
	require.True(t, lt.Warn(ctx, "store:auth-login", "counter store unavailable"))
	assert.Contains(t, buf.String(), "suppressed=5")
}

func TestLogThrottle_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	lt, _ := newThrottle(t, clock, WithLogBurst(1))
	ctx := context.Background()

	assert.True(t, lt.Warn(ctx, "a", "msg"))
	assert.False(t, lt.Warn(ctx, "a", "msg"))
	assert.True(t, lt.Warn(ctx, "b", "msg"))
}

func TestLogThrottle_CleanupIdleKeys(t *testing.T) {
	clock := newFakeClock()
	lt, _ := newThrottle(t, clock, WithLogIdleTTL(time.Minute))
	ctx := context.Background()

	lt.Warn(ctx, "old", "msg")
	clock.Advance(2 * time.Minute)
	lt.Warn(ctx, "fresh", "msg")

	lt.Cleanup()
	assert.Equal(t, 1, lt.Len())
}

func TestLogThrottle_NilIsSilent(t *testing.T) {
	var lt *LogThrottle
	assert.False(t, lt.Warn(context.Background(), "k", "msg"))
}

func TestLogThrottle_JanitorStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	lt := NewLogThrottle(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	lt.StartJanitor(ctx, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond)
}
