package infra

import (
	"context"
	"sync"
	"time"

	"sentinela-gateway/middleware/guard/domain"
)

// MemoryStore é a versão em memória do RedisStore (contadores + block list).
// Útil para testes e desenvolvimento; não compartilha estado entre processos.
type MemoryStore struct {
	mu        sync.Mutex
	counters  map[string]memCounter
	blocked   map[string]struct{}
	cooldowns map[string]time.Time
	now       func() time.Time

	// FailWith força todas as operações a falharem (simula Redis fora do ar).
	failWith error
}

type memCounter struct {
	n         int64
	expiresAt time.Time // zero = sem TTL
}

var (
	_ domain.CounterStore = (*MemoryStore)(nil)
	_ domain.BlockStore   = (*MemoryStore)(nil)
)

type MemoryStoreOption func(*MemoryStore)

// WithClock troca o relógio usado para expirar contadores e cooldowns.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		counters:  make(map[string]memCounter),
		blocked:   make(map[string]struct{}),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFailure liga (err != nil) ou desliga a falha simulada.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, domain.WrapStore("incr", s.failWith)
	}

	c, ok := s.counters[key]
	if ok && !c.expiresAt.IsZero() && !s.now().Before(c.expiresAt) {
		c = memCounter{}
	}
	c.n++
	s.counters[key] = c
	return c.n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.WrapStore("expire", s.failWith)
	}

	c, ok := s.counters[key]
	if !ok {
		return nil
	}
	c.expiresAt = s.now().Add(ttl)
	s.counters[key] = c
	return nil
}

func (s *MemoryStore) Add(_ context.Context, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.WrapStore("sadd", s.failWith)
	}
	s.blocked[member] = struct{}{}
	return nil
}

func (s *MemoryStore) AddTemporary(ctx context.Context, member string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Add(ctx, member)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.WrapStore("set cooldown", s.failWith)
	}
	s.cooldowns[member] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.WrapStore("srem", s.failWith)
	}
	delete(s.blocked, member)
	delete(s.cooldowns, member)
	return nil
}

func (s *MemoryStore) IsMember(_ context.Context, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, domain.WrapStore("sismember", s.failWith)
	}
	if _, ok := s.blocked[member]; ok {
		return true, nil
	}
	return s.cooldownActive(member), nil
}

func (s *MemoryStore) Members(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, domain.WrapStore("smembers", s.failWith)
	}
	out := make([]string, 0, len(s.blocked)+len(s.cooldowns))
	for m := range s.blocked {
		out = append(out, m)
	}
	for m := range s.cooldowns {
		if s.cooldownActive(m) {
			out = append(out, m)
		}
	}
	return uniqueSorted(out), nil
}

// cooldownActive assume s.mu travado; remove cooldowns vencidos.
func (s *MemoryStore) cooldownActive(member string) bool {
	until, ok := s.cooldowns[member]
	if !ok {
		return false
	}
	if !s.now().Before(until) {
		delete(s.cooldowns, member)
		return false
	}
	return true
}
