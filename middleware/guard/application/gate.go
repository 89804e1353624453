package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/metrics"
)

// RouteRule aplica uma regra extra às rotas que casam com Pattern.
type RouteRule struct {
	Pattern string
	Rule    domain.RateRule
}

type GateConfig struct {
	// APIKeys é a allow-list de credenciais aceitas.
	APIKeys []string
	Global  domain.RateRule
	Routes  []RouteRule
	// StoreTimeout limita cada chamada ao counter/block store.
	StoreTimeout time.Duration
}

// DefaultGateConfig: 100 req/min global com cooldown de 60s e 10 req/min
// na rota de transação (cooldown de 10s).
func DefaultGateConfig() GateConfig {
	return GateConfig{
		APIKeys: []string{"demo-key"},
		Global: domain.RateRule{
			Limit:        100,
			Window:       time.Minute,
			BlockOnLimit: true,
			BlockFor:     time.Minute,
		},
		Routes: []RouteRule{{
			Pattern: "/api/transaction",
			Rule: domain.RateRule{
				Name:         "transaction",
				Limit:        10,
				Window:       time.Minute,
				BlockOnLimit: true,
				BlockFor:     10 * time.Second,
			},
		}},
		StoreTimeout: 2 * time.Second,
	}
}

// AuthRequest é o que o gate precisa saber da requisição (sem HTTP).
type AuthRequest struct {
	Credential string
	ClientIP   string
	Path       string
}

// Gate decide se uma requisição pode seguir: credencial, block list e janela de rate limit.
// Falha de store é fail-open: a requisição segue e o erro vai para log/métrica.
type Gate struct {
	counters domain.CounterStore
	blocks   *BlockList
	keys     map[string]struct{}
	cfg      GateConfig

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type GateOption func(*Gate)

func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(counters domain.CounterStore, blocks *BlockList, cfg GateConfig, opts ...GateOption) (*Gate, error) {
	if counters == nil || blocks == nil {
		return nil, errors.New("gate: counter and block stores are required")
	}
	if err := validateRule(cfg.Global); err != nil {
		return nil, fmt.Errorf("gate: global rule: %w", err)
	}
	for _, rr := range cfg.Routes {
		if strings.TrimSpace(rr.Pattern) == "" {
			return nil, fmt.Errorf("%w: route rule without pattern", domain.ErrValidation)
		}
		if err := validateRule(rr.Rule); err != nil {
			return nil, fmt.Errorf("gate: route %s: %w", rr.Pattern, err)
		}
	}

	g := &Gate{
		counters: counters,
		blocks:   blocks,
		keys:     make(map[string]struct{}, len(cfg.APIKeys)),
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			g.keys[k] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func validateRule(r domain.RateRule) error {
	if r.Limit <= 0 || r.Window <= 0 {
		return fmt.Errorf("%w: limit and window must be positive", domain.ErrValidation)
	}
	return nil
}

// Evaluate roda as duas etapas e sempre devolve exatamente um resultado.
func (g *Gate) Evaluate(ctx context.Context, req AuthRequest) domain.Decision {
	dec := g.Authorize(ctx, req)
	if dec.Allowed() {
		rate := g.CheckRate(ctx, dec.Identity, g.RulesFor(req.Path))
		rate.StoreErr = errors.Join(dec.StoreErr, rate.StoreErr)
		dec = rate
	}
	g.metrics.Decision(string(dec.Outcome))
	return dec
}

// Authorize verifica credencial e block list (identidade e IP, formas canônica e legada).
func (g *Gate) Authorize(ctx context.Context, req AuthRequest) domain.Decision {
	cred := strings.TrimSpace(req.Credential)
	ip := domain.NormalizeIP(req.ClientIP)

	if cred == "" {
		return domain.Decision{Outcome: domain.OutcomeMissingKey, Identity: domain.IPIdentity(ip)}
	}

	id := domain.TokenIdentity(cred)
	dec := domain.Decision{Outcome: domain.OutcomeAuthorized, Identity: id}

	member, blocked, err := g.blocks.Check(ctx, ip, cred)
	if err != nil {
		dec.StoreErr = err
		g.storeFailure("block_check", id, err)
	}
	if blocked {
		dec.Outcome = domain.OutcomeBlocked
		dec.BlockedID = member
		return dec
	}

	if _, ok := g.keys[cred]; !ok {
		dec.Outcome = domain.OutcomeInvalidKey
	}
	return dec
}

// StoreTimeout é o limite aplicado a cada chamada de store do gate.
func (g *Gate) StoreTimeout() time.Duration {
	if g.cfg.StoreTimeout <= 0 {
		return DefaultGateConfig().StoreTimeout
	}
	return g.cfg.StoreTimeout
}

// RulesFor devolve a regra global seguida das regras de rota que casam com path.
func (g *Gate) RulesFor(path string) []domain.RateRule {
	rules := []domain.RateRule{g.cfg.Global}
	for _, rr := range g.cfg.Routes {
		if domain.MatchPath(path, rr.Pattern) {
			rules = append(rules, rr.Rule)
		}
	}
	return rules
}

// CheckRate conta a requisição em cada regra (janela fixa a partir do primeiro hit).
// A primeira regra estourada encerra a avaliação com rate_limited.
func (g *Gate) CheckRate(ctx context.Context, id domain.ClientIdentity, rules []domain.RateRule) domain.Decision {
	dec := domain.Decision{Outcome: domain.OutcomeAuthorized, Identity: id}
	canonical := id.String()

	for _, rule := range rules {
		count, err := g.hit(ctx, rule.CounterKey(canonical), rule.Window)
		if err != nil {
			dec.StoreErr = errors.Join(dec.StoreErr, err)
			g.storeFailure("rate_incr", id, err)
			continue
		}

		if count > int64(rule.Limit) {
			dec.Outcome = domain.OutcomeRateLimited
			dec.Limit = rule.Limit
			dec.Remaining = 0
			dec.RetryAfter = rule.Window
			if rule.BlockOnLimit {
				if rule.BlockFor > 0 {
					dec.RetryAfter = rule.BlockFor
				}
				if err := g.blocks.BlockFor(ctx, canonical, rule.BlockFor, "gate"); err != nil {
					dec.StoreErr = errors.Join(dec.StoreErr, err)
					g.storeFailure("block_add", id, err)
				}
			}
			g.logger.Warn("rate_limit_exceeded",
				"client_id", canonical,
				"rule", ruleName(rule),
				"count", count,
				"limit", rule.Limit,
			)
			return dec
		}

		remaining := rule.Limit - int(count)
		if dec.Limit == 0 || remaining < dec.Remaining {
			dec.Limit = rule.Limit
			dec.Remaining = remaining
		}
	}
	return dec
}

func (g *Gate) hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := withTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()

	count, err := g.counters.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// sem TTL a chave nunca expira; registra e segue com a contagem
		if err := g.counters.Expire(ctx, key, window); err != nil {
			g.metrics.StoreError("gate")
			g.logger.Error("rate_expire_failed", "key", key, "error", err)
		}
	}
	return count, nil
}

func (g *Gate) storeFailure(op string, id domain.ClientIdentity, err error) {
	g.metrics.StoreError("gate")
	g.logger.Error("gate_store_failure", "op", op, "client_id", id.String(), "error", err)
}

func ruleName(r domain.RateRule) string {
	if r.Name == "" {
		return "global"
	}
	return r.Name
}
