package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"admission-gateway/middleware/admission/domain"

	"github.com/go-playground/validator/v10"
)

// Validate aplica as tags de struct e as regras entre campos.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Store.Driver == "redis" && strings.TrimSpace(c.Store.RedisAddr) == "" {
		return errors.New("store.redis_addr is required when store.driver=redis")
	}
	if c.Monitoring.RedisEnabled && strings.TrimSpace(c.Store.RedisAddr) == "" {
		return errors.New("store.redis_addr is required when monitoring.redis_enabled=true")
	}
	if err := c.validateCategories(); err != nil {
		return err
	}
	return nil
}

// validateCategories garante que políticas e rotas só usam categorias conhecidas
// e que toda rota aponta para uma categoria com política.
func (c *Config) validateCategories() error {
	var problems []string
	for name := range c.Policies {
		if _, err := domain.ParseCategory(name); err != nil {
			problems = append(problems, fmt.Sprintf("policies.%s: unknown category", name))
		}
	}
	for prefix, name := range c.Routes {
		cat, err := domain.ParseCategory(name)
		if err != nil {
			problems = append(problems, fmt.Sprintf("routes[%s]: unknown category %q", prefix, name))
			continue
		}
		if _, ok := c.Policies[string(cat)]; !ok {
			problems = append(problems, fmt.Sprintf("routes[%s]: category %q has no policy", prefix, cat))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return errors.New(strings.Join(problems, "; "))
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gt", "gte":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"gt": ">", "gte": ">="}[e.Tag()], e.Param())
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
