package application

import (
	"context"
	"time"

	"sentinela-gateway/middleware/guard/domain"
)

// ThrottleDecision é o resultado do token bucket da superfície administrativa.
type ThrottleDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// ThrottleService aplica um domain.LimiterStore por chave (IP ou token de admin).
// Sem store, tudo passa.
type ThrottleService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s ThrottleService) Decide(key domain.Key) ThrottleDecision {
	if s.Store == nil || key == "" {
		return ThrottleDecision{Allowed: true}
	}
	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return ThrottleDecision{Allowed: true}
	}

	retry := s.RetryAfter
	if retry <= 0 {
		retry = time.Second
	}
	return ThrottleDecision{RetryAfter: retry}
}

// ConcurrencyService limita quantas requisições chegam ao upstream ao mesmo tempo.
// Timeout <= 0 espera até o ctx da requisição encerrar.
type ConcurrencyService struct {
	Pool    domain.SlotPool
	Timeout time.Duration
}

// Acquire devolve (release, ok); com ok=false nenhuma vaga foi tomada e release é no-op.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	release, ok := s.Pool.Acquire(ctx)
	if !ok || release == nil {
		return func() {}, false
	}
	return release, true
}
