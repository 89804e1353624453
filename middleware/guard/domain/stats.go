package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do gate.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de chaves no Redis).
type StatsEvent struct {
	Key     Key
	Outcome AuthOutcome

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para os contadores de decisão do gate.
//
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// StatsSnapshot é a leitura dos contadores por resultado e por rota.
type StatsSnapshot struct {
	Total   map[AuthOutcome]int64            `json:"total"`
	ByRoute map[string]map[AuthOutcome]int64 `json:"byRoute"`
}

// StatsReader é implementado pelos stores que sabem devolver um snapshot.
type StatsReader interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}
