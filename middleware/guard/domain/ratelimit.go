package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Usado pelo throttle da superfície administrativa (token bucket em infra).
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, token de admin).
type LimiterStore interface {
	Get(Key) Limiter
}

// RateRule é uma janela fixa de contagem por identidade.
// Name vazio é a regra global; senão entra no nome da chave do contador.
type RateRule struct {
	Name   string
	Limit  int
	Window time.Duration
	// BlockOnLimit coloca a identidade na block list ao estourar o limite.
	// BlockFor > 0 gera um bloqueio temporário; 0 bloqueia até desbloqueio manual.
	BlockOnLimit bool
	BlockFor     time.Duration
}

// CounterKey monta a chave do contador para a identidade canônica.
func (r RateRule) CounterKey(identity string) string {
	if r.Name == "" {
		return "rate:limit:" + identity
	}
	return "rate:limit:" + r.Name + ":" + identity
}

type Decision struct {
	Outcome  AuthOutcome
	Identity ClientIdentity
	// BlockedID é a forma encontrada na block list (canônica ou legada).
	BlockedID string

	// Limit/Remaining da regra mais restritiva aplicada; Limit 0 = sem cota.
	Limit     int
	Remaining int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	// StoreErr registra falha de store tratada como fail-open.
	StoreErr error
}

func (d Decision) Allowed() bool { return d.Outcome.Allowed() }
