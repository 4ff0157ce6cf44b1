package admission

import (
	"net"
	"net/http"
	"sort"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// KeyFunc extrai a identidade ("user:<id>", "ip:<addr>") da requisição.
// String vazia vira resposta 400.
type KeyFunc func(r *http.Request) string

// CategoryFunc escolhe a categoria da requisição. ok=false deixa a
// requisição passar sem controle de admissão.
type CategoryFunc func(r *http.Request) (domain.Category, bool)

// DefaultKeyFunc usa o header (quando presente) como identidade de usuário
// e cai para o IP do cliente.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return "user:" + v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return "ip:" + ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return "ip:" + host
		}
		if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
			return "ip:" + addr
		}
		return ""
	}
}

// StaticCategory aplica a mesma categoria a todas as requisições.
func StaticCategory(c domain.Category) CategoryFunc {
	return func(*http.Request) (domain.Category, bool) { return c, c != "" }
}

// PrefixCategoryFunc mapeia prefixos de path para categorias; vence o prefixo
// mais longo. Paths sem prefixo conhecido não passam pelo controle.
func PrefixCategoryFunc(routes map[string]domain.Category) CategoryFunc {
	prefixes := make([]string, 0, len(routes))
	for p := range routes {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	table := make(map[string]domain.Category, len(routes))
	for p, c := range routes {
		table[p] = c
	}

	return func(r *http.Request) (domain.Category, bool) {
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return table[p], true
			}
		}
		return "", false
	}
}
