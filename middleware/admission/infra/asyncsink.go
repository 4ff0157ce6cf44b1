package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"
)

var (
	ErrSinkQueueFull = errors.New("event sink queue full")
	ErrSinkClosed    = errors.New("event sink closed")
)

// AsyncSink desacopla um EventSink lento (ex.: Redis) do caminho da requisição:
// Record só enfileira num channel com capacidade fixa; um worker grava.
//
// Fila cheia descarta o evento e retorna ErrSinkQueueFull (nunca bloqueia).
type AsyncSink struct {
	next    domain.EventSink
	queue   chan domain.SecurityEvent
	timeout time.Duration
	onError func(error)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Int64
	failed  atomic.Int64
}

type AsyncSinkOption func(*AsyncSink)

// WithSinkTimeout limita cada escrita no sink de destino.
func WithSinkTimeout(d time.Duration) AsyncSinkOption {
	return func(s *AsyncSink) { s.timeout = d }
}

// WithSinkErrorHandler recebe erros do sink de destino (ex.: log com throttle).
func WithSinkErrorHandler(fn func(error)) AsyncSinkOption {
	return func(s *AsyncSink) { s.onError = fn }
}

func NewAsyncSink(next domain.EventSink, size int, opts ...AsyncSinkOption) *AsyncSink {
	if size <= 0 {
		size = 1
	}
	s := &AsyncSink{
		next:    next,
		queue:   make(chan domain.SecurityEvent, size),
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for ev := range s.queue {
		ctx := context.Background()
		cancel := func() {}
		if s.timeout > 0 {
			ctx, cancel = context.WithTimeout(context.Background(), s.timeout)
		}
		err := s.next.Record(ctx, ev)
		cancel()
		if err != nil {
			s.failed.Add(1)
			if s.onError != nil {
				s.onError(err)
			}
		}
	}
}

// Record implementa domain.EventSink.
func (s *AsyncSink) Record(_ context.Context, ev domain.SecurityEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrSinkQueueFull
	}
}

// Close para de aceitar eventos, drena a fila e espera o worker.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }
func (s *AsyncSink) Failed() int64  { return s.failed.Load() }

var _ domain.EventSink = (*AsyncSink)(nil)
