package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Monitor transforma decisões em SecurityEvents e os entrega a cada sink.
//
// É best-effort: erro ou panic de um sink é logado (com throttle) e engolido,
// nunca chega ao caminho da requisição. A identidade crua não sai daqui:
// só a classe derivada por domain.IdentityClass.
type Monitor struct {
	sinks []domain.EventSink

	Logger *slog.Logger
	Warn   Warner
	// OnError é chamado para cada erro de sink (ex.: métrica de descarte).
	OnError func(error)

	now func() time.Time
}

func NewMonitor(sinks ...domain.EventSink) *Monitor {
	m := &Monitor{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record deriva o evento de d e o espalha para os sinks.
func (m *Monitor) Record(ctx context.Context, d domain.Decision, identity string) {
	if m == nil || len(m.sinks) == 0 {
		return
	}
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	ev := domain.SecurityEvent{
		Category:      d.Category,
		IdentityClass: domain.IdentityClass(identity),
		Outcome:       domain.OutcomeOf(d),
		At:            now(),
	}
	for _, s := range m.sinks {
		if err := m.recordOne(ctx, s, ev); err != nil {
			m.report(ctx, s, err)
		}
	}
}

func (m *Monitor) recordOne(ctx context.Context, s domain.EventSink, ev domain.SecurityEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event sink panic: %v", r)
		}
	}()
	return s.Record(ctx, ev)
}

func (m *Monitor) report(ctx context.Context, s domain.EventSink, err error) {
	if m.OnError != nil {
		m.OnError(err)
	}
	sink := fmt.Sprintf("%T", s)
	if m.Warn != nil {
		m.Warn.Warn(ctx, "sink:"+sink, "security event dropped", "sink", sink, "error", err)
		return
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "security event dropped", "sink", sink, "error", err)
}
