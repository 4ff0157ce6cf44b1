package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FailureMode decide o que acontece quando o contador está indisponível.
type FailureMode string

const (
	FailClosed FailureMode = "closed"
	FailOpen   FailureMode = "open"
)

// ParseFailureMode aceita "" como closed.
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailClosed:
		return FailClosed, nil
	case FailOpen:
		return FailOpen, nil
	default:
		return "", fmt.Errorf("%w: failure mode %q", ErrInvalidPolicy, s)
	}
}

// Policy é a cota de uma categoria: até MaxRequests+Burst requisições por Window.
type Policy struct {
	Category    Category
	Window      time.Duration
	MaxRequests int64
	Burst       int64
	FailureMode FailureMode
}

// Ceiling é o maior count ainda admitido dentro da janela (inclusivo).
func (p Policy) Ceiling() int64 { return p.MaxRequests + p.Burst }

func (p Policy) Validate() error {
	if !p.Category.Valid() {
		return fmt.Errorf("%w: category %q", ErrUnknownCategory, p.Category)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be > 0", ErrInvalidPolicy, p.Category)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: %s: max requests must be > 0", ErrInvalidPolicy, p.Category)
	}
	if p.Burst < 0 {
		return fmt.Errorf("%w: %s: burst must be >= 0", ErrInvalidPolicy, p.Category)
	}
	if p.FailureMode != FailClosed && p.FailureMode != FailOpen {
		return fmt.Errorf("%w: %s: failure mode %q", ErrInvalidPolicy, p.Category, p.FailureMode)
	}
	return nil
}

// Registry é o mapa imutável categoria -> política.
// Seguro para uso concorrente: não existe caminho de escrita após NewRegistry.
type Registry struct {
	policies map[Category]Policy
}

// NewRegistry valida cada política e rejeita categorias duplicadas.
// FailureMode vazio vira FailClosed.
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[Category]Policy, len(policies))}
	for _, p := range policies {
		if p.FailureMode == "" {
			p.FailureMode = FailClosed
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.policies[p.Category]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidPolicy, p.Category)
		}
		r.policies[p.Category] = p
	}
	return r, nil
}

func (r *Registry) Resolve(c Category) (Policy, error) {
	if r == nil {
		return Policy{}, fmt.Errorf("%w: %q (empty registry)", ErrUnknownCategory, c)
	}
	p, ok := r.policies[c]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	return p, nil
}

// Policies retorna as políticas ordenadas por categoria.
func (r *Registry) Policies() []Policy {
	if r == nil {
		return nil
	}
	out := make([]Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.policies)
}
