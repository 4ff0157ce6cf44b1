package admission

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type Options struct {
	Evaluator application.Evaluator
	// Monitor recebe todas as decisões; nil desliga a telemetria.
	Monitor *application.Monitor

	// Category vale para todas as rotas quando CategoryFn é nil.
	Category   domain.Category
	CategoryFn CategoryFunc

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// AddHeaders expõe X-RateLimit-* também nas respostas admitidas.
	AddHeaders bool
	Logger     *slog.Logger

	now func() time.Time
}

// rejection é o corpo JSON de toda resposta negada pelo middleware.
type rejection struct {
	Error             string          `json:"error"`
	Category          domain.Category `json:"category"`
	Limit             int64           `json:"limit"`
	Remaining         int64           `json:"remaining"`
	ResetAt           *time.Time      `json:"reset_at,omitempty"`
	RetryAfterSeconds int64           `json:"retry_after_seconds,omitempty"`
	RequestID         string          `json:"request_id"`
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.CategoryFn == nil {
		opts.CategoryFn = StaticCategory(opts.Category)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			category, ok := opts.CategoryFn(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity := opts.KeyFn(r)
			d := opts.Evaluator.Admit(r.Context(), identity, category)
			opts.Monitor.Record(r.Context(), d, identity)

			if d.Allowed {
				if opts.AddHeaders {
					setLimitHeaders(w, d)
				}
				next.ServeHTTP(w, r)
				return
			}

			reqID := requestID(r)
			w.Header().Set(requestIDHeader, reqID)
			body := rejection{
				Category:  d.Category,
				Limit:     d.Limit,
				RequestID: reqID,
			}

			switch d.Reason {
			case domain.ReasonUnavailable:
				retry := time.Second
				w.Header().Set("Retry-After", formatInt64(int64(retry/time.Second)))
				body.Error = "admission_unavailable"
				body.RetryAfterSeconds = int64(retry / time.Second)
				writeJSON(w, http.StatusServiceUnavailable, body)
			case domain.ReasonMisconfigured:
				body.Error = "admission_misconfigured"
				writeJSON(w, http.StatusServiceUnavailable, body)
			case domain.ReasonInvalidID:
				opts.Logger.DebugContext(r.Context(), "admission rejected request without identity",
					"category", category, "path", r.URL.Path)
				body.Error = "invalid_identity"
				writeJSON(w, http.StatusBadRequest, body)
			default:
				retry := d.RetryAfter(opts.now())
				setLimitHeaders(w, d)
				w.Header().Set("Retry-After", formatInt64(int64(retry/time.Second)))
				resetAt := d.ResetAt.UTC()
				body.Error = "rate_limited"
				body.ResetAt = &resetAt
				body.RetryAfterSeconds = int64(retry / time.Second)
				writeJSON(w, http.StatusTooManyRequests, body)
			}
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, d domain.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", formatInt64(d.Limit))
	if d.Degraded {
		h.Set("X-RateLimit-Degraded", "true")
		return
	}
	h.Set("X-RateLimit-Remaining", formatInt64(d.Remaining))
	h.Set("X-RateLimit-Reset", formatUnix(d.ResetAt))
}

// requestID reaproveita o X-Request-Id do cliente/proxy ou gera um UUID.
func requestID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(requestIDHeader)); v != "" && len(v) <= 128 {
		return v
	}
	return uuid.NewString()
}
