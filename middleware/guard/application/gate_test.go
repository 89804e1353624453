package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/infra"
)

func newTestGate(t *testing.T, clock *fakeClock, cfg GateConfig) (*Gate, *infra.MemoryStore) {
	t.Helper()
	store := infra.NewMemoryStore(infra.WithClock(clock.Now))
	g, err := NewGate(store, NewBlockList(store), cfg)
	require.NoError(t, err)
	return g, store
}

func smallConfig(limit int) GateConfig {
	return GateConfig{
		APIKeys: []string{"k1", "k2"},
		Global: domain.RateRule{
			Limit:        limit,
			Window:       time.Minute,
			BlockOnLimit: true,
			BlockFor:     30 * time.Second,
		},
		StoreTimeout: time.Second,
	}
}

func TestGate_MissingCredentialAlwaysRejected(t *testing.T) {
	clock := newFakeClock()
	g, store := newTestGate(t, clock, smallConfig(5))
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "ip:10.0.0.1"))
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "::1", ""} {
		dec := g.Evaluate(ctx, AuthRequest{ClientIP: ip, Path: "/api/balance"})
		assert.Equal(t, domain.OutcomeMissingKey, dec.Outcome, "ip=%q", ip)
		assert.ErrorIs(t, dec.Outcome.Err(), domain.ErrAuth)
	}
}

func TestGate_InvalidCredential(t *testing.T) {
	g, _ := newTestGate(t, newFakeClock(), smallConfig(5))

	dec := g.Evaluate(context.Background(), AuthRequest{Credential: "nope", ClientIP: "10.0.0.1"})
	assert.Equal(t, domain.OutcomeInvalidKey, dec.Outcome)
	assert.Equal(t, "token:nope", dec.Identity.String())
}

func TestGate_BlockedBeforeAllowList(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"canonical token": "token:k1",
		"legacy token":    "k1",
		"canonical ip":    "ip:10.0.0.9",
		"legacy ip":       "10.0.0.9",
	}
	for name, member := range cases {
		t.Run(name, func(t *testing.T) {
			g, store := newTestGate(t, newFakeClock(), smallConfig(5))
			require.NoError(t, store.Add(ctx, member))

			dec := g.Evaluate(ctx, AuthRequest{Credential: "k1", ClientIP: "10.0.0.9"})
			assert.Equal(t, domain.OutcomeBlocked, dec.Outcome)
			assert.Equal(t, member, dec.BlockedID)
		})
	}
}

func TestGate_ThresholdPlusOneIsRateLimitedThenBlocked(t *testing.T) {
	clock := newFakeClock()
	g, store := newTestGate(t, clock, smallConfig(3))
	ctx := context.Background()
	req := AuthRequest{Credential: "k1", ClientIP: "10.0.0.1", Path: "/api/history"}

	for i := 1; i <= 3; i++ {
		dec := g.Evaluate(ctx, req)
		require.Equal(t, domain.OutcomeAuthorized, dec.Outcome, "request %d", i)
		assert.Equal(t, 3, dec.Limit)
		assert.Equal(t, 3-i, dec.Remaining)
	}

	dec := g.Evaluate(ctx, req)
	assert.Equal(t, domain.OutcomeRateLimited, dec.Outcome)
	assert.Equal(t, 30*time.Second, dec.RetryAfter)

	ok, err := store.IsMember(ctx, "token:k1")
	require.NoError(t, err)
	assert.True(t, ok)

	dec = g.Evaluate(ctx, req)
	assert.Equal(t, domain.OutcomeBlocked, dec.Outcome)

	// outro cliente não é afetado
	other := g.Evaluate(ctx, AuthRequest{Credential: "k2", ClientIP: "10.0.0.1"})
	assert.Equal(t, domain.OutcomeAuthorized, other.Outcome)
}

func TestGate_CooldownExpires(t *testing.T) {
	clock := newFakeClock()
	g, _ := newTestGate(t, clock, smallConfig(1))
	ctx := context.Background()
	req := AuthRequest{Credential: "k1", ClientIP: "10.0.0.1"}

	require.True(t, g.Evaluate(ctx, req).Allowed())
	require.Equal(t, domain.OutcomeRateLimited, g.Evaluate(ctx, req).Outcome)
	require.Equal(t, domain.OutcomeBlocked, g.Evaluate(ctx, req).Outcome)

	clock.Advance(61 * time.Second)
	assert.Equal(t, domain.OutcomeAuthorized, g.Evaluate(ctx, req).Outcome)
}

func TestGate_WindowAnchoredAtFirstHit(t *testing.T) {
	clock := newFakeClock()
	cfg := smallConfig(2)
	cfg.Global.BlockOnLimit = false
	g, _ := newTestGate(t, clock, cfg)
	ctx := context.Background()
	req := AuthRequest{Credential: "k1"}

	g.Evaluate(ctx, req)
	clock.Advance(50 * time.Second)
	g.Evaluate(ctx, req)
	assert.Equal(t, domain.OutcomeRateLimited, g.Evaluate(ctx, req).Outcome)

	clock.Advance(11 * time.Second)
	dec := g.Evaluate(ctx, req)
	assert.Equal(t, domain.OutcomeAuthorized, dec.Outcome)
	assert.Equal(t, 1, dec.Remaining)
}

func TestGate_RouteRuleIsMostRestrictive(t *testing.T) {
	cfg := smallConfig(100)
	cfg.Routes = []RouteRule{{
		Pattern: "/api/transaction",
		Rule:    domain.RateRule{Name: "transaction", Limit: 2, Window: time.Minute},
	}}
	g, _ := newTestGate(t, newFakeClock(), cfg)
	ctx := context.Background()
	req := AuthRequest{Credential: "k1", Path: "/api/transaction"}

	dec := g.Evaluate(ctx, req)
	assert.Equal(t, 2, dec.Limit)
	assert.Equal(t, 1, dec.Remaining)

	g.Evaluate(ctx, req)
	assert.Equal(t, domain.OutcomeRateLimited, g.Evaluate(ctx, req).Outcome)

	// a rota de saldo só conta na regra global
	bal := g.Evaluate(ctx, AuthRequest{Credential: "k1", Path: "/api/balance"})
	assert.Equal(t, domain.OutcomeAuthorized, bal.Outcome)
	assert.Equal(t, 100, bal.Limit)
}

func TestGate_FailsOpenWhenStoreUnavailable(t *testing.T) {
	g, store := newTestGate(t, newFakeClock(), smallConfig(1))
	store.SetFailure(errors.New("connection refused"))
	ctx := context.Background()

	for range 3 {
		dec := g.Evaluate(ctx, AuthRequest{Credential: "k1", ClientIP: "10.0.0.1"})
		assert.Equal(t, domain.OutcomeAuthorized, dec.Outcome)
		assert.ErrorIs(t, dec.StoreErr, domain.ErrStoreUnavailable)
	}

	// credencial inválida continua rejeitada mesmo com o store fora
	dec := g.Evaluate(ctx, AuthRequest{Credential: "bad"})
	assert.Equal(t, domain.OutcomeInvalidKey, dec.Outcome)
}

func TestNewGate_ValidatesRules(t *testing.T) {
	store := infra.NewMemoryStore()
	blocks := NewBlockList(store)

	_, err := NewGate(store, blocks, GateConfig{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	cfg := smallConfig(1)
	cfg.Routes = []RouteRule{{Rule: domain.RateRule{Limit: 1, Window: time.Second}}}
	_, err = NewGate(store, blocks, cfg)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewGate(nil, blocks, smallConfig(1))
	assert.Error(t, err)

	_, err = NewGate(store, blocks, DefaultGateConfig())
	assert.NoError(t, err)
}

func TestGate_ConcurrentHitsAreCountedOnce(t *testing.T) {
	const limit, extra = 20, 15

	stores := map[string]func(t *testing.T) domain.CounterStore{
		"memory": func(*testing.T) domain.CounterStore { return infra.NewMemoryStore() },
		"redis": func(t *testing.T) domain.CounterStore {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return infra.NewRedisStore(rdb)
		},
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			store := mk(t)
			cfg := smallConfig(limit)
			// sem bloqueio: todo excedente deve sair como rate_limited
			cfg.Global.BlockOnLimit = false
			g, err := NewGate(store, NewBlockList(infra.NewMemoryStore()), cfg)
			require.NoError(t, err)

			var (
				mu       sync.Mutex
				outcomes = map[domain.AuthOutcome]int{}
			)
			var eg errgroup.Group
			for range limit + extra {
				eg.Go(func() error {
					dec := g.Evaluate(context.Background(), AuthRequest{
						Credential: "k1",
						ClientIP:   "10.0.0.1",
						Path:       "/api/balance",
					})
					mu.Lock()
					outcomes[dec.Outcome]++
					mu.Unlock()
					return dec.StoreErr
				})
			}
			require.NoError(t, eg.Wait())

			assert.Equal(t, limit, outcomes[domain.OutcomeAuthorized])
			assert.Equal(t, extra, outcomes[domain.OutcomeRateLimited])
			assert.Len(t, outcomes, 2)
		})
	}
}
