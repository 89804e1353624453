package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinela-gateway/middleware/guard/domain"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisStore_IncrAndExpire(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	n, err := s.Incr(ctx, "rate:limit:token:a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, s.Expire(ctx, "rate:limit:token:a", time.Minute))

	n, err = s.Incr(ctx, "rate:limit:token:a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, time.Minute, mr.TTL("rate:limit:token:a"))

	mr.FastForward(61 * time.Second)
	n, err = s.Incr(ctx, "rate:limit:token:a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRedisStore_BlockSetAndCooldown(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "ip:10.0.0.1"))
	require.NoError(t, s.Add(ctx, "ip:10.0.0.1"))
	require.NoError(t, s.AddTemporary(ctx, "token:t", 10*time.Second))

	ok, err := mr.SIsMember("blocked:clients", "ip:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("blocked:tmp:token:t"))

	members, err := s.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ip:10.0.0.1", "token:t"}, members)

	blocked, err := s.IsMember(ctx, "token:t")
	require.NoError(t, err)
	assert.True(t, blocked)

	mr.FastForward(11 * time.Second)
	blocked, err = s.IsMember(ctx, "token:t")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, s.Remove(ctx, "ip:10.0.0.1"))
	blocked, err = s.IsMember(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestRedisStore_AddTemporaryWithoutTTLIsPermanent(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisStore(rdb, WithBlockSet("custom:set"), WithCooldownPrefix("custom:tmp"))
	ctx := context.Background()

	require.NoError(t, s.AddTemporary(ctx, "token:x", 0))
	ok, err := mr.SIsMember("custom:set", "token:x")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.AddTemporary(ctx, "token:y", time.Second))
	assert.True(t, mr.Exists("custom:tmp:token:y"))
}

func TestRedisStore_ErrorsAreStoreUnavailable(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisStore(rdb)
	mr.Close()

	_, err := s.Incr(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = s.IsMember(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), domain.ErrStoreUnavailable)
}

func TestRedisStatsStore_RecordAndSnapshot(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisStatsStore(rdb, WithStatsTrackKeys(true))
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	for _, o := range []domain.AuthOutcome{domain.OutcomeAuthorized, domain.OutcomeAuthorized, domain.OutcomeRateLimited} {
		require.NoError(t, s.Record(ctx, domain.StatsEvent{
			Key: "token:a", Outcome: o, Method: "GET", Path: "/api/balance", At: at,
		}))
	}

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Total[domain.OutcomeAuthorized])
	assert.EqualValues(t, 1, snap.Total[domain.OutcomeRateLimited])
	assert.EqualValues(t, 2, snap.ByRoute["GET /api/balance"][domain.OutcomeAuthorized])

	assert.True(t, mr.Exists("gate:stats:minute:202403011030"))
	assert.Equal(t, "2", mr.HGet("gate:stats:key:token:a", "authorized"))
}
