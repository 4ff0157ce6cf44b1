package domain

import (
	"fmt"
	"time"
)

// Reason explica uma Decision que não veio de uma contagem normal.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonQuota         Reason = "quota_exceeded"
	ReasonUnavailable   Reason = "store_unavailable"
	ReasonMisconfigured Reason = "misconfigured"
	ReasonInvalidID     Reason = "invalid_identity"
)

// Decision é um objeto de valor devolvido ao chamador; nunca é persistido.
type Decision struct {
	Category Category
	Allowed  bool

	// Limit ecoa Policy.MaxRequests. Burst é a folga extra na mesma janela.
	Limit int64
	Burst int64

	// Remaining é max(0, Limit+Burst-Count): chega a 0 exatamente quando a
	// próxima requisição seria negada.
	Remaining int64
	Count     int64
	ResetAt   time.Time

	FailureMode FailureMode
	// Degraded marca admissões feitas sem consultar o contador (fail open).
	Degraded bool
	Reason   Reason
}

// RetryAfter é o tempo até ResetAt, arredondado para cima em segundos e
// com mínimo de 1s quando negado.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	if d.ResetAt.IsZero() {
		return time.Second
	}
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	secs := wait / time.Second
	if wait%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}

// Err transforma uma negação por cota em erro embrulhando ErrQuotaExceeded.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonQuota || d.Reason == ReasonNone {
		return fmt.Errorf("%w: %s (limit %d, resets at %s)", ErrQuotaExceeded, d.Category, d.Limit, d.ResetAt.UTC().Format(time.RFC3339))
	}
	return fmt.Errorf("admission denied: %s: %s", d.Category, d.Reason)
}

// NewDecision sintetiza a decisão a partir do estado pós-incremento.
func NewDecision(p Policy, st CounterState) Decision {
	remaining := p.Ceiling() - st.Count
	if remaining < 0 {
		remaining = 0
	}
	allowed := st.Count <= p.Ceiling()
	reason := ReasonNone
	if !allowed {
		reason = ReasonQuota
	}
	return Decision{
		Category:    p.Category,
		Allowed:     allowed,
		Limit:       p.MaxRequests,
		Burst:       p.Burst,
		Remaining:   remaining,
		Count:       st.Count,
		ResetAt:     st.ResetAt(),
		FailureMode: p.FailureMode,
		Reason:      reason,
	}
}

// StatusDecision monta a visão de status (peek) sem consumir cota.
//
// ok=false (sem janela ativa) reporta a cota cheia e ResetAt zero. Allowed
// significa "a próxima requisição seria admitida".
func StatusDecision(p Policy, st CounterState, ok bool) Decision {
	if !ok {
		return Decision{
			Category:    p.Category,
			Allowed:     true,
			Limit:       p.MaxRequests,
			Burst:       p.Burst,
			Remaining:   p.Ceiling(),
			FailureMode: p.FailureMode,
		}
	}
	d := NewDecision(p, st)
	d.Allowed = st.Count < p.Ceiling()
	d.Reason = ReasonNone
	if !d.Allowed {
		d.Reason = ReasonQuota
	}
	return d
}
