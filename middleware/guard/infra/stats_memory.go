package infra

import (
	"context"
	"sync"

	"sentinela-gateway/middleware/guard/domain"
)

// MemoryStatsStore conta decisões do gate em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   map[domain.AuthOutcome]int64
	byRoute map[string]map[domain.AuthOutcome]int64
	byKey   map[string]map[domain.AuthOutcome]int64

	trackKeys bool
}

var (
	_ domain.StatsStore  = (*MemoryStatsStore)(nil)
	_ domain.StatsReader = (*MemoryStatsStore)(nil)
)

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:   make(map[domain.AuthOutcome]int64),
		byRoute: make(map[string]map[domain.AuthOutcome]int64),
		byKey:   make(map[string]map[domain.AuthOutcome]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++
	bump(s.byRoute, route, ev.Outcome)
	if s.trackKeys {
		bump(s.byKey, string(ev.Key), ev.Outcome)
	}
	return nil
}

func bump(m map[string]map[domain.AuthOutcome]int64, k string, o domain.AuthOutcome) {
	c, ok := m[k]
	if !ok {
		c = make(map[domain.AuthOutcome]int64)
		m[k] = c
	}
	c[o]++
}

func (s *MemoryStatsStore) Snapshot(context.Context) (domain.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.StatsSnapshot{Total: cloneCounts(s.total), ByRoute: cloneNested(s.byRoute)}, nil
}

func (s *MemoryStatsStore) ByKey() map[string]map[domain.AuthOutcome]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneNested(s.byKey)
}

func cloneCounts(in map[domain.AuthOutcome]int64) map[domain.AuthOutcome]int64 {
	out := make(map[domain.AuthOutcome]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneNested(in map[string]map[domain.AuthOutcome]int64) map[string]map[domain.AuthOutcome]int64 {
	out := make(map[string]map[domain.AuthOutcome]int64, len(in))
	for k, v := range in {
		out[k] = cloneCounts(v)
	}
	return out
}
