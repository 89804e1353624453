package guard

import (
	"context"
	"sync"
	"time"

	"sentinela-gateway/middleware/guard/domain"
)

// RequestMeta é o que o gate deixa para o logger: identidade, resultado e
// o tempo gasto no próprio gate.
type RequestMeta struct {
	mu       sync.Mutex
	identity domain.ClientIdentity
	clientIP string
	token    string
	outcome  domain.AuthOutcome
	gateTime time.Duration
}

type metaKey struct{}

// WithMeta anexa um RequestMeta novo ao ctx (ou reaproveita um existente).
func WithMeta(ctx context.Context) (context.Context, *RequestMeta) {
	if m := MetaFrom(ctx); m != nil {
		return ctx, m
	}
	m := &RequestMeta{}
	return context.WithValue(ctx, metaKey{}, m), m
}

// MetaFrom devolve nil quando nenhum RequestLogger envolveu a requisição.
func MetaFrom(ctx context.Context) *RequestMeta {
	m, _ := ctx.Value(metaKey{}).(*RequestMeta)
	return m
}

func (m *RequestMeta) record(id domain.ClientIdentity, ip, token string, outcome domain.AuthOutcome, gate time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = id
	m.clientIP = ip
	m.token = token
	m.outcome = outcome
	m.gateTime = gate
}

// Outcome devolve OutcomeUnknown se o gate não rodou.
func (m *RequestMeta) Outcome() domain.AuthOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcome == "" {
		return domain.OutcomeUnknown
	}
	return m.outcome
}

func (m *RequestMeta) Identity() domain.ClientIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

func (m *RequestMeta) GateTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gateTime
}

func (m *RequestMeta) snapshot() (domain.ClientIdentity, string, string, domain.AuthOutcome, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity, m.clientIP, m.token, m.outcome, m.gateTime
}
