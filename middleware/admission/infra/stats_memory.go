package infra

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// MemoryAggregator acumula SecurityEvents em baldes de tempo (resolution) e
// mantém só os últimos `retention`. Memória limitada por
// (retention/resolution) * maxClasses * categorias * resultados.
//
// Baldes velhos saem de forma preguiçosa no Record e no janitor.
type MemoryAggregator struct {
	mu      sync.Mutex
	buckets map[int64]*aggBucket
	lastCut int64

	resolution time.Duration
	retention  time.Duration
	maxClasses int
	now        func() time.Time

	dropped atomic.Int64

	cleanupEvery time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

type seriesKey struct {
	category domain.Category
	class    string
	outcome  domain.Outcome
}

type aggBucket struct {
	counts  map[seriesKey]int64
	classes map[string]struct{}
}

type AggregatorOption func(*MemoryAggregator)

func WithResolution(d time.Duration) AggregatorOption {
	return func(a *MemoryAggregator) {
		if d > 0 {
			a.resolution = d
		}
	}
}

func WithRetention(d time.Duration) AggregatorOption {
	return func(a *MemoryAggregator) {
		if d > 0 {
			a.retention = d
		}
	}
}

// WithMaxClasses limita classes distintas por balde; o excedente vai para
// domain.ClassOverflow e conta em Dropped.
func WithMaxClasses(n int) AggregatorOption {
	return func(a *MemoryAggregator) {
		if n > 0 {
			a.maxClasses = n
		}
	}
}

func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *MemoryAggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithSweepEvery(d time.Duration) AggregatorOption {
	return func(a *MemoryAggregator) { a.cleanupEvery = d }
}

func NewMemoryAggregator(opts ...AggregatorOption) *MemoryAggregator {
	a := &MemoryAggregator{
		buckets:      make(map[int64]*aggBucket),
		resolution:   time.Minute,
		retention:    time.Hour,
		maxClasses:   1024,
		now:          time.Now,
		cleanupEvery: time.Minute,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.retention < a.resolution {
		a.retention = a.resolution
	}
	return a
}

func (a *MemoryAggregator) bucketID(t time.Time) int64 {
	return t.UnixNano() / int64(a.resolution)
}

// oldestLiveID é o menor balde ainda dentro da retenção em now.
func (a *MemoryAggregator) oldestLiveID(now time.Time) int64 {
	return a.bucketID(now.Add(-a.retention)) + 1
}

// Record implementa domain.EventSink. Nunca falha.
func (a *MemoryAggregator) Record(_ context.Context, ev domain.SecurityEvent) error {
	now := a.now()
	at := ev.At
	if at.IsZero() || at.After(now) {
		at = now
	}
	class := ev.IdentityClass
	if class == "" {
		class = domain.ClassUnknown
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	oldest := a.oldestLiveID(now)
	if oldest > a.lastCut {
		a.pruneLocked(oldest)
	}

	id := a.bucketID(at)
	if id < oldest {
		// evento mais velho que a retenção: descartado
		a.dropped.Add(1)
		return nil
	}

	b, ok := a.buckets[id]
	if !ok {
		b = &aggBucket{counts: make(map[seriesKey]int64), classes: make(map[string]struct{})}
		a.buckets[id] = b
	}
	if _, seen := b.classes[class]; !seen {
		if len(b.classes) >= a.maxClasses {
			class = domain.ClassOverflow
			a.dropped.Add(1)
		}
		b.classes[class] = struct{}{}
	}
	b.counts[seriesKey{category: ev.Category, class: class, outcome: ev.Outcome}]++
	return nil
}

func (a *MemoryAggregator) pruneLocked(oldest int64) {
	for id := range a.buckets {
		if id < oldest {
			delete(a.buckets, id)
		}
	}
	a.lastCut = oldest
}

// Prune remove baldes fora da retenção.
func (a *MemoryAggregator) Prune() {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked(a.oldestLiveID(now))
}

// Snapshot retorna a visão agregada da retenção atual. Não altera o estado.
func (a *MemoryAggregator) Snapshot() domain.AggregateStats {
	now := a.now()

	a.mu.Lock()
	oldest := a.oldestLiveID(now)
	merged := make(map[seriesKey]int64)
	for id, b := range a.buckets {
		if id < oldest {
			continue
		}
		for k, v := range b.counts {
			merged[k] += v
		}
	}
	a.mu.Unlock()

	stats := domain.AggregateStats{
		From:       time.Unix(0, oldest*int64(a.resolution)).UTC(),
		To:         now.UTC(),
		Totals:     domain.OutcomeCounts{},
		ByCategory: make(map[domain.Category]domain.OutcomeCounts),
		Series:     make([]domain.ClassCount, 0, len(merged)),
		Dropped:    a.dropped.Load(),
	}
	// todos os resultados aparecem, mesmo zerados
	for _, o := range domain.Outcomes() {
		stats.Totals[o] = 0
	}
	for k, v := range merged {
		stats.Totals[k.outcome] += v
		byCat := stats.ByCategory[k.category]
		if byCat == nil {
			byCat = domain.OutcomeCounts{}
			stats.ByCategory[k.category] = byCat
		}
		byCat[k.outcome] += v
		stats.Series = append(stats.Series, domain.ClassCount{
			Category:      k.category,
			IdentityClass: k.class,
			Outcome:       k.outcome,
			Count:         v,
		})
	}
	sort.Slice(stats.Series, func(i, j int) bool {
		si, sj := stats.Series[i], stats.Series[j]
		if si.Count != sj.Count {
			return si.Count > sj.Count
		}
		if si.Category != sj.Category {
			return si.Category < sj.Category
		}
		if si.IdentityClass != sj.IdentityClass {
			return si.IdentityClass < sj.IdentityClass
		}
		return si.Outcome < sj.Outcome
	})
	return stats
}

// Dropped conta eventos fora da retenção ou desviados para ClassOverflow.
func (a *MemoryAggregator) Dropped() int64 { return a.dropped.Load() }

// Buckets retorna quantos baldes estão em memória.
func (a *MemoryAggregator) Buckets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

// StartJanitor chama Prune periodicamente até ctx encerrar ou Stop.
func (a *MemoryAggregator) StartJanitor(ctx context.Context) {
	if a.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(a.cleanupEvery)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case <-t.C:
				a.Prune()
			}
		}
	}()
}

func (a *MemoryAggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
}

var _ domain.EventSink = (*MemoryAggregator)(nil)
