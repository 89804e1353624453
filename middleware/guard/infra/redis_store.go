package infra

import (
	"context"
	"sort"
	"strings"
	"time"

	"sentinela-gateway/middleware/guard/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore implementa domain.CounterStore e domain.BlockStore.
//
// Block list permanente: set `blocked:clients` (SADD/SREM/SISMEMBER/SMEMBERS).
// Bloqueios temporários: chaves `blocked:tmp:<member>` com TTL, porque membros
// de set no Redis não expiram individualmente.
type RedisStore struct {
	rdb *redis.Client

	blockSet       string
	cooldownPrefix string
	scanCount      int64
}

var (
	_ domain.CounterStore = (*RedisStore)(nil)
	_ domain.BlockStore   = (*RedisStore)(nil)
)

type RedisStoreOption func(*RedisStore)

func WithBlockSet(name string) RedisStoreOption {
	return func(s *RedisStore) {
		if name = strings.TrimSpace(name); name != "" {
			s.blockSet = name
		}
	}
}

func WithCooldownPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix = strings.Trim(prefix, ": "); prefix != "" {
			s.cooldownPrefix = prefix + ":"
		}
	}
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:            rdb,
		blockSet:       "blocked:clients",
		cooldownPrefix: "blocked:tmp:",
		scanCount:      100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return domain.WrapStore("ping", s.rdb.Ping(ctx).Err())
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, domain.WrapStore("incr", err)
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return domain.WrapStore("expire", s.rdb.Expire(ctx, key, ttl).Err())
}

func (s *RedisStore) Add(ctx context.Context, member string) error {
	return domain.WrapStore("sadd", s.rdb.SAdd(ctx, s.blockSet, member).Err())
}

func (s *RedisStore) AddTemporary(ctx context.Context, member string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Add(ctx, member)
	}
	return domain.WrapStore("set cooldown", s.rdb.Set(ctx, s.cooldownKey(member), "1", ttl).Err())
}

// Remove tira o membro do set e apaga um eventual cooldown.
func (s *RedisStore) Remove(ctx context.Context, member string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, s.blockSet, member)
	pipe.Del(ctx, s.cooldownKey(member))
	_, err := pipe.Exec(ctx)
	return domain.WrapStore("srem", err)
}

func (s *RedisStore) IsMember(ctx context.Context, member string) (bool, error) {
	pipe := s.rdb.Pipeline()
	inSet := pipe.SIsMember(ctx, s.blockSet, member)
	cooldown := pipe.Exists(ctx, s.cooldownKey(member))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, domain.WrapStore("sismember", err)
	}
	return inSet.Val() || cooldown.Val() > 0, nil
}

// Members devolve membros permanentes e em cooldown, ordenados e sem repetição.
func (s *RedisStore) Members(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, s.blockSet).Result()
	if err != nil {
		return nil, domain.WrapStore("smembers", err)
	}

	iter := s.rdb.Scan(ctx, 0, s.cooldownPrefix+"*", s.scanCount).Iterator()
	for iter.Next(ctx) {
		members = append(members, strings.TrimPrefix(iter.Val(), s.cooldownPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, domain.WrapStore("scan cooldown", err)
	}
	return uniqueSorted(members), nil
}

func (s *RedisStore) cooldownKey(member string) string { return s.cooldownPrefix + member }

func uniqueSorted(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for i, v := range in {
		if i > 0 && v == in[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
