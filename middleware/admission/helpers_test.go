package admission

import (
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	reg, err := domain.NewRegistry(
		domain.Policy{Category: domain.CategoryAuthLogin, Window: time.Minute, MaxRequests: 5, FailureMode: domain.FailClosed},
		domain.Policy{Category: domain.CategoryPublicContent, Window: time.Minute, MaxRequests: 100, FailureMode: domain.FailOpen},
	)
	require.NoError(t, err)
	return reg
}

func newTestStore(clock *fakeClock) *infra.MemoryCounterStore {
	return infra.NewMemoryCounterStore(infra.WithClock(clock.Now))
}
