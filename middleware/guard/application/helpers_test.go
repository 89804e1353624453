package application

import (
	"context"
	"sync"
	"time"

	"sentinela-gateway/middleware/guard/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// hookedLogs embrulha um LogStore e deixa o teste interceptar Query.
type hookedLogs struct {
	domain.LogStore
	onQuery func(f domain.LogFilter) error
}

func (h hookedLogs) Query(ctx context.Context, f domain.LogFilter) ([]domain.RequestLogRecord, error) {
	if h.onQuery != nil {
		if err := h.onQuery(f); err != nil {
			return nil, err
		}
	}
	return h.LogStore.Query(ctx, f)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}
