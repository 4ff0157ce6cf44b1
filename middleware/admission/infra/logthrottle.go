package infra

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LogThrottle limita o volume de logs repetidos (ex.: contador fora do ar)
// com um token bucket (x/time/rate) por chave, e limpeza de chaves ociosas.
//
// Logs suprimidos são contados e reportados no próximo log liberado da chave.
type LogThrottle struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*throttleEntry
	every   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type throttleEntry struct {
	lim        *rate.Limiter
	lastSeen   time.Time
	suppressed atomic.Int64
}

type LogThrottleOption func(*LogThrottle)

// WithLogInterval libera no máximo um log por intervalo, após o burst inicial.
func WithLogInterval(d time.Duration) LogThrottleOption {
	return func(t *LogThrottle) {
		if d > 0 {
			t.every = rate.Every(d)
		}
	}
}

func WithLogBurst(n int) LogThrottleOption {
	return func(t *LogThrottle) {
		if n > 0 {
			t.burst = n
		}
	}
}

func WithLogIdleTTL(d time.Duration) LogThrottleOption {
	return func(t *LogThrottle) { t.idleTTL = d }
}

func NewLogThrottle(logger *slog.Logger, opts ...LogThrottleOption) *LogThrottle {
	if logger == nil {
		logger = slog.Default()
	}
	t := &LogThrottle{
		logger:  logger,
		entries: make(map[string]*throttleEntry),
		every:   rate.Every(10 * time.Second),
		burst:   3,
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *LogThrottle) entry(key string) *throttleEntry {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if ent, ok := t.entries[key]; ok {
		ent.lastSeen = now
		return ent
	}
	ent := &throttleEntry{lim: rate.NewLimiter(t.every, t.burst), lastSeen: now}
	t.entries[key] = ent
	return ent
}

// Log emite o registro se a chave ainda tiver orçamento; senão só conta.
// Retorna true quando o log foi emitido.
func (t *LogThrottle) Log(ctx context.Context, key string, level slog.Level, msg string, args ...any) bool {
	if t == nil {
		return false
	}
	ent := t.entry(key)
	if !ent.lim.AllowN(t.now(), 1) {
		ent.suppressed.Add(1)
		return false
	}
	if n := ent.suppressed.Swap(0); n > 0 {
		args = append(args, "suppressed", n)
	}
	t.logger.Log(ctx, level, msg, args...)
	return true
}

func (t *LogThrottle) Warn(ctx context.Context, key string, msg string, args ...any) bool {
	return t.Log(ctx, key, slog.LevelWarn, msg, args...)
}

// Cleanup remove chaves sem uso há mais de idleTTL.
func (t *LogThrottle) Cleanup() {
	cutoff := t.now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, ent := range t.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}

func (t *LogThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// StartJanitor chama Cleanup a cada `every` até o contexto encerrar.
func (t *LogThrottle) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	tk := time.NewTicker(every)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				t.Cleanup()
			}
		}
	}()
}
