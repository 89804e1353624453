package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/metrics"
)

// BlockList é o acesso fino ao set de bloqueio, compartilhado pelo gate,
// pelo motor de detecção e pelo admin. Adicionar um membro existente é no-op.
type BlockList struct {
	store   domain.BlockStore
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type BlockListOption func(*BlockList)

func WithBlockTimeout(d time.Duration) BlockListOption {
	return func(b *BlockList) { b.timeout = d }
}

func WithBlockLogger(l *slog.Logger) BlockListOption {
	return func(b *BlockList) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithBlockMetrics(m *metrics.Metrics) BlockListOption {
	return func(b *BlockList) { b.metrics = m }
}

func NewBlockList(store domain.BlockStore, opts ...BlockListOption) *BlockList {
	b := &BlockList{
		store:   store,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Check consulta IP e token nas formas canônica e legada.
// Retorna a forma encontrada na block list.
func (b *BlockList) Check(ctx context.Context, ip, token string) (string, bool, error) {
	ctx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	for _, member := range domain.BlockCandidates(ip, token) {
		ok, err := b.store.IsMember(ctx, member)
		if err != nil {
			return "", false, err
		}
		if ok {
			return member, true, nil
		}
	}
	return "", false, nil
}

// Block adiciona member de forma permanente. source vai para log/métricas.
func (b *BlockList) Block(ctx context.Context, member, source string) error {
	return b.BlockFor(ctx, member, 0, source)
}

// BlockFor adiciona um bloqueio que expira após ttl (ttl <= 0 = permanente).
func (b *BlockList) BlockFor(ctx context.Context, member string, ttl time.Duration, source string) error {
	member, err := normalizeMember(member)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	if ttl > 0 {
		err = b.store.AddTemporary(ctx, member, ttl)
	} else {
		err = b.store.Add(ctx, member)
	}
	if err != nil {
		return fmt.Errorf("block %s: %w", member, err)
	}
	b.metrics.Block(source)
	b.logger.Info("client_blocked", "client_id", member, "source", source, "ttl", ttl.String())
	return nil
}

func (b *BlockList) Unblock(ctx context.Context, member string) error {
	member, err := normalizeMember(member)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.store.Remove(ctx, member); err != nil {
		return fmt.Errorf("unblock %s: %w", member, err)
	}
	b.logger.Info("client_unblocked", "client_id", member)
	return nil
}

func (b *BlockList) List(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	members, err := b.store.Members(ctx)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

func normalizeMember(member string) (string, error) {
	member = strings.TrimSpace(member)
	if member == "" {
		return "", fmt.Errorf("%w: clientId required", domain.ErrValidation)
	}
	return member, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
