package domain

import (
	"context"
	"time"
)

// Outcome é o resultado agregado de uma decisão.
type Outcome string

const (
	OutcomeAllowed       Outcome = "allowed"
	OutcomeDenied        Outcome = "denied"
	OutcomeFailOpen      Outcome = "fail_open"
	OutcomeFailClosed    Outcome = "fail_closed"
	OutcomeMisconfigured Outcome = "misconfigured"
)

var outcomes = []Outcome{OutcomeAllowed, OutcomeDenied, OutcomeFailOpen, OutcomeFailClosed, OutcomeMisconfigured}

// Outcomes lista todos os valores, na ordem de exibição.
func Outcomes() []Outcome {
	out := make([]Outcome, len(outcomes))
	copy(out, outcomes)
	return out
}

// OutcomeOf classifica uma Decision já resolvida.
func OutcomeOf(d Decision) Outcome {
	switch {
	case d.Reason == ReasonMisconfigured:
		return OutcomeMisconfigured
	case d.Degraded:
		return OutcomeFailOpen
	case d.Reason == ReasonUnavailable:
		return OutcomeFailClosed
	case d.Allowed:
		return OutcomeAllowed
	default:
		return OutcomeDenied
	}
}

// SecurityEvent é a entrada do agregador de monitoramento.
//
// IdentityClass é sempre um balde grosseiro (ver IdentityClass), nunca a
// identidade original: cuidado com cardinalidade e com privacidade.
type SecurityEvent struct {
	Category      Category
	IdentityClass string
	Outcome       Outcome
	At            time.Time
}

// EventSink é a estratégia de destino dos eventos (memória, Redis, Prometheus).
//
// O chamador trata erro como best-effort (não derruba a requisição).
type EventSink interface {
	Record(ctx context.Context, ev SecurityEvent) error
}

// OutcomeCounts conta eventos por resultado.
type OutcomeCounts map[Outcome]int64

func (c OutcomeCounts) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

// ClassCount é uma série (categoria, classe, resultado).
type ClassCount struct {
	Category      Category `json:"category"`
	IdentityClass string   `json:"identity_class"`
	Outcome       Outcome  `json:"outcome"`
	Count         int64    `json:"count"`
}

// AggregateStats é a visão (possivelmente um pouco atrasada) da janela de
// agregação. Nunca contém identidades.
type AggregateStats struct {
	From       time.Time                  `json:"from"`
	To         time.Time                  `json:"to"`
	Totals     OutcomeCounts              `json:"totals"`
	ByCategory map[Category]OutcomeCounts `json:"by_category"`
	Series     []ClassCount               `json:"series"`
	Dropped    int64                      `json:"dropped"`
}
