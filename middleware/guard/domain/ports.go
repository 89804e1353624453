package domain

import (
	"context"
	"time"
)

// CounterStore é um contador compartilhado com incremento atômico e TTL por chave
// (INCR / EXPIRE).
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// BlockStore é o conjunto compartilhado usado como block list.
// AddTemporary cria um bloqueio com expiração automática (cooldown).
type BlockStore interface {
	Add(ctx context.Context, member string) error
	AddTemporary(ctx context.Context, member string, ttl time.Duration) error
	Remove(ctx context.Context, member string) error
	IsMember(ctx context.Context, member string) (bool, error)
	Members(ctx context.Context) ([]string, error)
}

// LogStore é um log append-only, ordenado por timestamp e consultável.
type LogStore interface {
	Append(ctx context.Context, rec RequestLogRecord) error
	Query(ctx context.Context, f LogFilter) ([]RequestLogRecord, error)
	Count(ctx context.Context, f LogFilter) (int64, error)
	Stats(ctx context.Context, since time.Time) (LogStats, error)
}

// AlertStore guarda os resultados de detecção.
type AlertStore interface {
	Append(ctx context.Context, a Alert) error
	// FindRecent retorna nil, nil quando não há alerta no intervalo.
	FindRecent(ctx context.Context, clientID string, vt ViolationType, since time.Time) (*Alert, error)
	List(ctx context.Context, limit int) ([]Alert, error)
}

// Publisher é a notificação best-effort para o feed em tempo real.
// Publish nunca pode bloquear o chamador.
type Publisher interface {
	Publish(ev Event)
}

type EventType string

const (
	EventNewLog   EventType = "newLog"
	EventNewAlert EventType = "newAlert"
)

// Event é o envelope publicado no canal ao vivo.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}
