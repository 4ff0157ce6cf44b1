package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
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

// brokenStore sempre falha; slow=true bloqueia até o ctx encerrar.
type brokenStore struct {
	slow bool
}

func (s brokenStore) IncrementAndGet(ctx context.Context, _ string, _ time.Duration) (domain.CounterState, error) {
	if s.slow {
		<-ctx.Done()
		return domain.CounterState{}, ctx.Err()
	}
	return domain.CounterState{}, errors.New("dial tcp: connection refused")
}

func (s brokenStore) Peek(ctx context.Context, _ string) (domain.CounterState, bool, error) {
	if s.slow {
		<-ctx.Done()
		return domain.CounterState{}, false, ctx.Err()
	}
	return domain.CounterState{}, false, errors.New("dial tcp: connection refused")
}

type countingWarner struct {
	mu   sync.Mutex
	keys []string
}

func (w *countingWarner) Warn(_ context.Context, key string, _ string, _ ...any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys = append(w.keys, key)
	return true
}

func (w *countingWarner) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.keys)
}

type recordingObserver struct {
	mu     sync.Mutex
	ops    []string
	errors int
}

func (o *recordingObserver) ObserveStore(op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
	if err != nil {
		o.errors++
	}
}

func mustRegistry(policies ...domain.Policy) *domain.Registry {
	reg, err := domain.NewRegistry(policies...)
	if err != nil {
		panic(err)
	}
	return reg
}

func loginPolicy() domain.Policy {
	return domain.Policy{Category: domain.CategoryAuthLogin, Window: 60 * time.Second, MaxRequests: 5}
}

func publicPolicy() domain.Policy {
	return domain.Policy{Category: domain.CategoryPublicContent, Window: time.Minute, MaxRequests: 100, FailureMode: domain.FailOpen}
}
