package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultStoreTimeout = 250 * time.Millisecond

var tracer = otel.Tracer("admission-gateway/middleware/admission")

// Warner emite avisos com volume limitado por chave (ver infra.LogThrottle).
type Warner interface {
	Warn(ctx context.Context, key string, msg string, args ...any) bool
}

// StoreObserver recebe latência/erro de cada ida ao contador (ex.: Prometheus).
type StoreObserver interface {
	ObserveStore(operation string, took time.Duration, err error)
}

// Evaluator concentra a regra de admissão.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Toda chamada de Check consome cota, admitida ou não.
type Evaluator struct {
	Registry *domain.Registry
	Store    domain.CounterStore

	// Timeout limita cada ida ao contador; estourar conta como
	// ErrStoreUnavailable. Padrão 250ms.
	Timeout   time.Duration
	KeyPrefix string

	Logger   *slog.Logger
	Warn     Warner
	Observer StoreObserver
}

func (e Evaluator) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Evaluator) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return defaultStoreTimeout
}

func (e Evaluator) warn(ctx context.Context, key, msg string, args ...any) {
	if e.Warn != nil {
		e.Warn.Warn(ctx, key, msg, args...)
		return
	}
	e.logger().WarnContext(ctx, msg, args...)
}

// Check resolve a política, incrementa o contador e compara o count com
// MaxRequests+Burst (inclusivo).
//
// Erros:
//   - domain.ErrUnknownCategory: categoria sem política (erro de deploy).
//   - domain.ErrInvalidIdentity: identidade vazia/inválida.
//   - domain.ErrStoreUnavailable: contador fora do ar ou timeout.
//
// Em erro, a Decision devolvida já carrega Category e, quando a política é
// conhecida, Limit/Burst/FailureMode, para o chamador aplicar fail open/closed.
// Não há retry, e o incremento não é desfeito se o ctx for cancelado depois.
func (e Evaluator) Check(ctx context.Context, identity string, category domain.Category) (domain.Decision, error) {
	ctx, span := tracer.Start(ctx, "admission.check",
		trace.WithAttributes(attribute.String("admission.category", string(category))))
	defer span.End()

	policy, err := e.Registry.Resolve(category)
	if err != nil {
		e.logger().ErrorContext(ctx, "admission policy not found", "category", category, "error", err)
		span.SetStatus(codes.Error, "misconfigured")
		return domain.Decision{Category: category, Reason: domain.ReasonMisconfigured}, err
	}

	base := domain.Decision{
		Category:    category,
		Limit:       policy.MaxRequests,
		Burst:       policy.Burst,
		FailureMode: policy.FailureMode,
	}

	if err := domain.ValidateIdentity(identity); err != nil {
		span.SetStatus(codes.Error, "invalid identity")
		base.Reason = domain.ReasonInvalidID
		return base, err
	}
	if e.Store == nil {
		err := fmt.Errorf("%w: no counter store configured", domain.ErrStoreUnavailable)
		e.warn(ctx, "store:"+string(category), "counter store unavailable", "category", category, "failure_mode", policy.FailureMode, "error", err)
		base.Reason = domain.ReasonUnavailable
		return base, err
	}

	key := domain.CounterKey(e.KeyPrefix, identity, category)

	storeCtx, cancel := context.WithTimeout(ctx, e.timeout())
	started := time.Now()
	st, err := e.Store.IncrementAndGet(storeCtx, key, policy.Window)
	cancel()
	if e.Observer != nil {
		e.Observer.ObserveStore("increment", time.Since(started), err)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		e.warn(ctx, "store:"+string(category), "counter store unavailable",
			"category", category, "failure_mode", policy.FailureMode, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		base.Reason = domain.ReasonUnavailable
		return base, err
	}

	d := domain.NewDecision(policy, st)
	span.SetAttributes(
		attribute.Bool("admission.allowed", d.Allowed),
		attribute.Int64("admission.count", d.Count),
		attribute.Int64("admission.remaining", d.Remaining),
	)
	return d, nil
}

// Admit é Check com a política de falha aplicada: sempre devolve uma decisão.
//
//   - categoria desconhecida: nega (ReasonMisconfigured), sempre.
//   - identidade inválida: nega (ReasonInvalidID).
//   - contador indisponível: FailOpen admite com Degraded=true; FailClosed nega.
func (e Evaluator) Admit(ctx context.Context, identity string, category domain.Category) domain.Decision {
	d, err := e.Check(ctx, identity, category)
	if err == nil {
		return d
	}

	d.Allowed = false
	switch {
	case domain.IsStoreUnavailable(err):
		d.Reason = domain.ReasonUnavailable
		if d.FailureMode == domain.FailOpen {
			d.Allowed = true
			d.Degraded = true
		}
	case errors.Is(err, domain.ErrInvalidIdentity):
		d.Reason = domain.ReasonInvalidID
	default:
		d.Reason = domain.ReasonMisconfigured
	}
	return d
}
