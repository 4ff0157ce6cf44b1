package infra

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 32

// MemoryCounterStore é o CounterStore em processo: janelas fixas em mapas
// particionados (shard escolhido por xxhash da chave), cada um com seu mutex.
//
// Expiração é preguiçosa na leitura; StartJanitor remove registros vencidos
// periodicamente para limitar memória mesmo com chaves que nunca voltam.
type MemoryCounterStore struct {
	shards    []*counterShard
	now       func() time.Time
	ttlFactor int64

	cleanupEvery time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	unavailable atomic.Bool
}

type counterShard struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
}

type counterEntry struct {
	state     domain.CounterState
	expiresAt time.Time
}

type MemoryStoreOption func(*MemoryCounterStore)

// WithClock injeta o relógio (testes).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryCounterStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTTLFactor define TTL = window * factor. Valores < 1 viram 1.
func WithTTLFactor(factor int) MemoryStoreOption {
	return func(s *MemoryCounterStore) {
		if factor < 1 {
			factor = 1
		}
		s.ttlFactor = int64(factor)
	}
}

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func WithShards(n int) MemoryStoreOption {
	return func(s *MemoryCounterStore) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

func NewMemoryCounterStore(opts ...MemoryStoreOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		shards:       newShards(defaultShards),
		now:          time.Now,
		ttlFactor:    1,
		cleanupEvery: time.Minute,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newShards(n int) []*counterShard {
	out := make([]*counterShard, n)
	for i := range out {
		out[i] = &counterShard{entries: make(map[string]*counterEntry)}
	}
	return out
}

func (s *MemoryCounterStore) shard(key string) *counterShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// SetAvailable simula indisponibilidade do contador.
func (s *MemoryCounterStore) SetAvailable(ok bool) { s.unavailable.Store(!ok) }

func (s *MemoryCounterStore) checkAvailable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if s.unavailable.Load() {
		return fmt.Errorf("%w: memory store disabled", domain.ErrStoreUnavailable)
	}
	return nil
}

// IncrementAndGet implementa domain.CounterStore.
func (s *MemoryCounterStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (domain.CounterState, error) {
	if err := s.checkAvailable(ctx); err != nil {
		return domain.CounterState{}, err
	}
	if window <= 0 {
		return domain.CounterState{}, fmt.Errorf("%w: window must be > 0", domain.ErrInvalidPolicy)
	}

	now := s.now()
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	ent, ok := sh.entries[key]
	if !ok || ent.state.Elapsed(now) {
		ent = &counterEntry{
			state:     domain.CounterState{Count: 1, WindowStart: now, Window: window},
			expiresAt: now.Add(time.Duration(s.ttlFactor) * window),
		}
		sh.entries[key] = ent
		return ent.state, nil
	}

	ent.state.Count++
	return ent.state, nil
}

// Peek implementa domain.CounterStore. Registros vencidos não são removidos aqui.
func (s *MemoryCounterStore) Peek(ctx context.Context, key string) (domain.CounterState, bool, error) {
	if err := s.checkAvailable(ctx); err != nil {
		return domain.CounterState{}, false, err
	}

	now := s.now()
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	ent, ok := sh.entries[key]
	if !ok || ent.state.Elapsed(now) {
		return domain.CounterState{}, false, nil
	}
	return ent.state, true, nil
}

// Cleanup remove registros cujo TTL passou e retorna quantos foram removidos.
func (s *MemoryCounterStore) Cleanup() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, ent := range sh.entries {
			if !now.Before(ent.expiresAt) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len retorna o número de registros (inclusive vencidos ainda não limpos).
func (s *MemoryCounterStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// StartJanitor inicia uma goroutine que chama Cleanup periodicamente.
// Pare cancelando o contexto ou chamando Stop.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// Stop encerra o janitor e espera a goroutine sair. Pode ser chamado mais de uma vez.
func (s *MemoryCounterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

var _ domain.CounterStore = (*MemoryCounterStore)(nil)
