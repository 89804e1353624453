package infra

import (
	"sync"
	"sync/atomic"

	"sentinela-gateway/middleware/guard/domain"
)

// Hub distribui eventos do feed ao vivo para os inscritos.
//
// Publish nunca bloqueia: inscrito com buffer cheio perde o evento (contado em Dropped).
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	closed  bool
	dropped atomic.Int64

	onChange func(subscribers int)
}

type subscriber struct {
	ch   chan domain.Event
	once sync.Once
}

var _ domain.Publisher = (*Hub)(nil)

type HubOption func(*Hub)

// WithSubscriberGauge recebe o total de inscritos a cada mudança (ex.: gauge Prometheus).
func WithSubscriberGauge(fn func(subscribers int)) HubOption {
	return func(h *Hub) { h.onChange = fn }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{subs: make(map[*subscriber]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registra um inscrito com o buffer indicado. O cancel retornado
// remove a inscrição e fecha o canal; pode ser chamado mais de uma vez.
func (h *Hub) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{ch: make(chan domain.Event, buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.notify(n)

	return sub.ch, func() {
		h.mu.Lock()
		_, ok := h.subs[sub]
		delete(h.subs, sub)
		n := len(h.subs)
		h.mu.Unlock()
		sub.close()
		if ok {
			h.notify(n)
		}
	}
}

func (h *Hub) Publish(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close encerra todos os inscritos; Subscribe posterior recebe canal já fechado.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.closed = true
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
	h.notify(0)
}

func (s *subscriber) close() { s.once.Do(func() { close(s.ch) }) }

func (h *Hub) notify(n int) {
	if h.onChange != nil {
		h.onChange(n)
	}
}
