package domain

import (
	"fmt"
	"strings"
)

// Category identifica um grupo de recursos protegido por uma mesma política.
//
// O conjunto é fechado: valores fora de Categories() são rejeitados na carga
// da configuração, e não em cada chamada.
type Category string

const (
	CategoryAuthLogin         Category = "auth-login"
	CategoryAuthSignup        Category = "auth-signup"
	CategoryAuthPasswordReset Category = "auth-password-reset"
	CategoryDirectorySearch   Category = "directory-search"
	CategoryMessagingSend     Category = "messaging-send"
	CategoryPublicContent     Category = "public-content"
)

var knownCategories = []Category{
	CategoryAuthLogin,
	CategoryAuthSignup,
	CategoryAuthPasswordReset,
	CategoryDirectorySearch,
	CategoryMessagingSend,
	CategoryPublicContent,
}

// Categories retorna uma cópia do conjunto de categorias conhecidas.
func Categories() []Category {
	out := make([]Category, len(knownCategories))
	copy(out, knownCategories)
	return out
}

func (c Category) Valid() bool {
	for _, k := range knownCategories {
		if c == k {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// ParseCategory normaliza (trim + lower) e valida o valor.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}
