package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// StatusService responde "qual a minha situação?" usando só CounterStore.Peek:
// consultar nunca consome cota.
type StatusService struct {
	Registry  *domain.Registry
	Store     domain.CounterStore
	Timeout   time.Duration
	KeyPrefix string
	Observer  StoreObserver
}

func (s StatusService) Status(ctx context.Context, identity string, category domain.Category) (domain.Decision, error) {
	policy, err := s.Registry.Resolve(category)
	if err != nil {
		return domain.Decision{Category: category, Reason: domain.ReasonMisconfigured}, err
	}
	if err := domain.ValidateIdentity(identity); err != nil {
		return domain.Decision{Category: category, Reason: domain.ReasonInvalidID}, err
	}
	if s.Store == nil {
		return domain.Decision{Category: category, Reason: domain.ReasonUnavailable},
			fmt.Errorf("%w: no counter store configured", domain.ErrStoreUnavailable)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	peekCtx, cancel := context.WithTimeout(ctx, timeout)
	started := time.Now()
	st, ok, err := s.Store.Peek(peekCtx, domain.CounterKey(s.KeyPrefix, identity, category))
	cancel()
	if s.Observer != nil {
		s.Observer.ObserveStore("peek", time.Since(started), err)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return domain.Decision{
			Category:    category,
			Limit:       policy.MaxRequests,
			Burst:       policy.Burst,
			FailureMode: policy.FailureMode,
			Reason:      domain.ReasonUnavailable,
		}, err
	}
	return domain.StatusDecision(policy, st, ok), nil
}
