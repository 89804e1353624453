package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sentinela-gateway/middleware/guard/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de decisão do gate em hashes do Redis:
//
//	<prefix>:total          campo = outcome
//	<prefix>:route          campo = "<METHOD> <path>|<outcome>"
//	<prefix>:minute:<yyyymmddhhmm> campo = outcome (com TTL)
//	<prefix>:key:<identity> campo = outcome (opcional, com TTL)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

var (
	_ domain.StatsStore  = (*RedisStatsStore)(nil)
	_ domain.StatsReader = (*RedisStatsStore)(nil)
)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "gate:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const routeSep = "|"

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)
	if field == "" {
		field = string(domain.OutcomeUnknown)
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
	if routeField != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", routeField+routeSep+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return domain.WrapStore("record stats", err)
}

func (s *RedisStatsStore) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	pipe := s.rdb.Pipeline()
	totalCmd := pipe.HGetAll(ctx, s.prefix+":total")
	routeCmd := pipe.HGetAll(ctx, s.prefix+":route")
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StatsSnapshot{}, domain.WrapStore("stats snapshot", err)
	}

	snap := domain.StatsSnapshot{
		Total:   make(map[domain.AuthOutcome]int64),
		ByRoute: make(map[string]map[domain.AuthOutcome]int64),
	}
	for field, raw := range totalCmd.Val() {
		n, _ := strconv.ParseInt(raw, 10, 64)
		snap.Total[domain.AuthOutcome(field)] = n
	}
	for field, raw := range routeCmd.Val() {
		i := strings.LastIndex(field, routeSep)
		if i < 0 {
			continue
		}
		route, outcome := field[:i], domain.AuthOutcome(field[i+len(routeSep):])
		if snap.ByRoute[route] == nil {
			snap.ByRoute[route] = make(map[domain.AuthOutcome]int64)
		}
		n, _ := strconv.ParseInt(raw, 10, 64)
		snap.ByRoute[route][outcome] = n
	}
	return snap, nil
}
