package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// MaxIdentityLen limita o tamanho da identidade usada em chaves do contador.
const MaxIdentityLen = 256

// CounterState é o estado de uma janela fixa para uma chave.
//
// Window é a duração com que a janela foi criada, e não a da política atual:
// uma troca de política não corrompe janelas em andamento.
type CounterState struct {
	Count       int64
	WindowStart time.Time
	Window      time.Duration
}

func (s CounterState) ResetAt() time.Time { return s.WindowStart.Add(s.Window) }

// Elapsed reporta se a janela já terminou em now.
func (s CounterState) Elapsed(now time.Time) bool { return !now.Before(s.ResetAt()) }

// CounterStore é o único recurso mutável compartilhado do subsistema.
//
// Implementações devem ser seguras para uso concorrente sem lock do lado do
// chamador. Em IncrementAndGet, duas chamadas simultâneas para a mesma chave
// nunca podem observar o mesmo count.
//
// Erros de infraestrutura (rede, timeout) devem embrulhar ErrStoreUnavailable.
type CounterStore interface {
	// IncrementAndGet incrementa a chave e retorna o estado pós-incremento.
	// Sem registro, ou com janela vencida, inicia janela nova com Count=1.
	// O registro expira sozinho (TTL >= window).
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (CounterState, error)

	// Peek lê sem efeito colateral. ok=false quando não existe janela ativa
	// (registro ausente ou vencido); nunca cria nem reinicia registros.
	Peek(ctx context.Context, key string) (state CounterState, ok bool, err error)
}

// ValidateIdentity rejeita identidades vazias, longas demais ou com caracteres
// de controle.
func ValidateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if len(identity) > MaxIdentityLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentity, MaxIdentityLen)
	}
	for _, r := range identity {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character", ErrInvalidIdentity)
		}
	}
	return nil
}

// CounterKey monta a chave do contador: "<prefix>:<category>:<identity>".
//
// Categorias nunca contêm ':' (conjunto fechado), então o primeiro separador
// após o prefixo delimita a categoria sem ambiguidade mesmo quando a identidade
// contém ':' (ex.: "ip:2001:db8::1").
func CounterKey(prefix string, identity string, c Category) string {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		return string(c) + ":" + identity
	}
	return prefix + ":" + string(c) + ":" + identity
}
