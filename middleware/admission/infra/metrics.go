package infra

import (
	"context"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa as métricas Prometheus do controle de admissão.
//
// Labels só usam categoria/resultado/operação: nada com cardinalidade de
// identidade.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	SinkDropped   prometheus.Counter
}

// NewMetrics cria e registra as métricas no registry informado.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admission",
				Name:      "decisions_total",
				Help:      "Admission decisions by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		StoreErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admission",
				Name:      "store_errors_total",
				Help:      "Counter store failures by operation",
			},
			[]string{"operation"}, // increment / peek
		),
		CheckDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "admission",
				Name:      "check_duration_seconds",
				Help:      "Latency of counter store round trips",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		SinkDropped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "admission",
				Name:      "sink_dropped_total",
				Help:      "Security events dropped by telemetry sinks",
			},
		),
	}
}

// Record implementa domain.EventSink.
func (m *Metrics) Record(_ context.Context, ev domain.SecurityEvent) error {
	if m == nil {
		return nil
	}
	m.Decisions.WithLabelValues(string(ev.Category), string(ev.Outcome)).Inc()
	return nil
}

// ObserveStore registra latência e, se err != nil, o erro da operação.
func (m *Metrics) ObserveStore(operation string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.CheckDuration.WithLabelValues(operation).Observe(took.Seconds())
	if err != nil {
		m.StoreErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) SinkDrop() {
	if m == nil {
		return
	}
	m.SinkDropped.Inc()
}

var _ domain.EventSink = (*Metrics)(nil)
