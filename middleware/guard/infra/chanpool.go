package infra

import (
	"context"

	"sentinela-gateway/middleware/guard/domain"
)

// ChanPool limita as requisições em voo até o upstream com um semáforo em channel.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool cria o semáforo com capacidade `size` (mínimo 1).
func NewChanPool(size int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max(size, 1))}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse é o número de vagas ocupadas agora.
func (p *ChanPool) InUse() int { return len(p.sem) }

func (p *ChanPool) Cap() int { return cap(p.sem) }
