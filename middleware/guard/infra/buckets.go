package infra

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sentinela-gateway/middleware/guard/domain"
)

// BucketStore mantém um token bucket (x/time/rate) por chave da superfície
// administrativa (token de admin ou IP). O gate de clientes não usa isto: lá a
// cota é uma janela fixa compartilhada no Redis.
type BucketStore struct {
	rps   rate.Limit
	burst int

	idleTTL time.Duration
	sweep   time.Duration
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	buckets map[domain.Key]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

var _ domain.LimiterStore = (*BucketStore)(nil)

type BucketOption func(*BucketStore)

// WithIdleTTL define depois de quanto tempo sem uso um bucket é descartado.
func WithIdleTTL(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.idleTTL = d }
}

// WithSweepEvery define o intervalo do janitor; <= 0 desliga a varredura.
func WithSweepEvery(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.sweep = d }
}

func WithBucketClock(now func() time.Time) BucketOption {
	return func(s *BucketStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithBucketLogger(l *slog.Logger) BucketOption {
	return func(s *BucketStore) {
		if l != nil {
			s.log = l
		}
	}
}

func NewBucketStore(rps float64, burst int, opts ...BucketOption) *BucketStore {
	s := &BucketStore{
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		idleTTL: 15 * time.Minute,
		sweep:   2 * time.Minute,
		now:     time.Now,
		log:     slog.Default(),
		buckets: make(map[domain.Key]*bucket),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BucketStore) RPS() float64 { return float64(s.rps) }
func (s *BucketStore) Burst() int   { return s.burst }

// Get devolve o bucket da chave, criando um cheio no primeiro acesso.
func (s *BucketStore) Get(key domain.Key) domain.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(s.rps, s.burst)}
		s.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// Len é o número de chaves com bucket ativo.
func (s *BucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Evict descarta os buckets parados há mais de idleTTL e devolve quantos saíram.
func (s *BucketStore) Evict() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, b := range s.buckets {
		if b.seen.Before(cutoff) {
			delete(s.buckets, k)
			n++
		}
	}
	return n
}

// RunJanitor chama Evict periodicamente até o ctx encerrar. Bloqueia.
func (s *BucketStore) RunJanitor(ctx context.Context) error {
	if s.sweep <= 0 {
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(s.sweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Evict(); n > 0 {
				s.log.Debug("throttle_buckets_evicted", "evicted", n, "remaining", s.Len())
			}
		}
	}
}
