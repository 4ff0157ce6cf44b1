package admission

import (
	"context"
	"errors"
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"github.com/go-chi/chi/v5"
)

// Snapshotter é satisfeito por infra.MemoryAggregator.
type Snapshotter interface {
	Snapshot() domain.AggregateStats
}

// TotalsReader é satisfeito por infra.RedisStatsStore (histórico cumulativo).
type TotalsReader interface {
	Totals(ctx context.Context) (map[domain.Category]domain.OutcomeCounts, error)
}

type statsResponse struct {
	domain.AggregateStats
	History      map[domain.Category]domain.OutcomeCounts `json:"history,omitempty"`
	HistoryError string                                   `json:"history_error,omitempty"`
}

type statusResponse struct {
	Category    domain.Category    `json:"category"`
	Allowed     bool               `json:"allowed"`
	Limit       int64              `json:"limit"`
	Burst       int64              `json:"burst"`
	Remaining   int64              `json:"remaining"`
	Count       int64              `json:"count"`
	ResetAt     *time.Time         `json:"reset_at,omitempty"`
	FailureMode domain.FailureMode `json:"failure_mode"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// StatusHandler responde GET .../status/{category} com a cota do chamador
// sem consumi-la.
func StatusHandler(svc application.StatusService, keyFn KeyFunc) http.HandlerFunc {
	if keyFn == nil {
		keyFn = DefaultKeyFunc("", false)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "category")
		category, err := domain.ParseCategory(raw)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown_category", Category: raw})
			return
		}

		d, err := svc.Status(r.Context(), keyFn(r), category)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrUnknownCategory):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown_category", Category: raw})
			return
		case errors.Is(err, domain.ErrInvalidIdentity):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_identity", Category: raw})
			return
		default:
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "admission_unavailable", Category: raw})
			return
		}

		resp := statusResponse{
			Category:    d.Category,
			Allowed:     d.Allowed,
			Limit:       d.Limit,
			Burst:       d.Burst,
			Remaining:   d.Remaining,
			Count:       d.Count,
			FailureMode: d.FailureMode,
		}
		if !d.ResetAt.IsZero() {
			at := d.ResetAt.UTC()
			resp.ResetAt = &at
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// StatsHandler expõe o snapshot agregado (sem identidades cruas). Com
// history != nil, inclui os totais cumulativos; falha ao lê-los não derruba
// a resposta.
func StatsHandler(src Snapshotter, history TotalsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "stats_disabled"})
			return
		}
		resp := statsResponse{AggregateStats: src.Snapshot()}
		if history != nil {
			totals, err := history.Totals(r.Context())
			if err != nil {
				resp.HistoryError = "history_unavailable"
			} else {
				resp.History = totals
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Routes monta as rotas de consulta num chi.Router.
func Routes(r chi.Router, status application.StatusService, keyFn KeyFunc, stats Snapshotter, history TotalsReader) {
	r.Get("/v1/admission/status/{category}", StatusHandler(status, keyFn))
	r.Get("/ops/admission/stats", StatsHandler(stats, history))
}
