package infra

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"sentinela-gateway/middleware/guard/domain"
)

// MemoryLogStore guarda logs e alertas em memória, em ordem de timestamp.
// Útil para testes e para rodar o gateway sem banco.
type MemoryLogStore struct {
	mu     sync.RWMutex
	logs   []domain.RequestLogRecord
	alerts []domain.Alert

	failWith error
}

var (
	_ domain.LogStore   = (*MemoryLogStore)(nil)
	_ domain.AlertStore = memoryAlerts{}
)

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

// SetFailure liga (err != nil) ou desliga a falha simulada.
func (s *MemoryLogStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryLogStore) Append(_ context.Context, rec domain.RequestLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.WrapStore("append log", s.failWith)
	}
	// inserção estável: registros com o mesmo timestamp mantêm a ordem de chegada
	i := sort.Search(len(s.logs), func(i int) bool { return s.logs[i].Timestamp.After(rec.Timestamp) })
	s.logs = slices.Insert(s.logs, i, rec)
	return nil
}

func (s *MemoryLogStore) Query(_ context.Context, f domain.LogFilter) ([]domain.RequestLogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, domain.WrapStore("query logs", s.failWith)
	}

	var out []domain.RequestLogRecord
	for _, rec := range s.logs {
		if matchLog(f, rec) {
			out = append(out, rec)
		}
	}
	if f.Newest {
		slices.Reverse(out)
	}
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *MemoryLogStore) Count(_ context.Context, f domain.LogFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return 0, domain.WrapStore("count logs", s.failWith)
	}
	var n int64
	for _, rec := range s.logs {
		if matchLog(f, rec) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryLogStore) Stats(_ context.Context, since time.Time) (domain.LogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return domain.LogStats{}, domain.WrapStore("log stats", s.failWith)
	}
	var (
		total, success, failed int64
		sum                    float64
	)
	for _, rec := range s.logs {
		if rec.Timestamp.Before(since) {
			continue
		}
		total++
		sum += rec.ResponseTimeMs
		switch {
		case rec.StatusCode >= 200 && rec.StatusCode < 300:
			success++
		case rec.StatusCode >= 400:
			failed++
		}
	}
	var avg float64
	if total > 0 {
		avg = sum / float64(total)
	}
	return domain.NewLogStats(total, success, failed, avg), nil
}

func matchLog(f domain.LogFilter, rec domain.RequestLogRecord) bool {
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Timestamp.After(f.Until) {
		return false
	}
	if f.Endpoint != "" && rec.Endpoint != f.Endpoint {
		return false
	}
	if f.ClientID != "" && rec.ClientID != f.ClientID {
		return false
	}
	if len(f.StatusCodes) > 0 && !slices.Contains(f.StatusCodes, rec.StatusCode) {
		return false
	}
	return true
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// Alerts expõe o lado domain.AlertStore.
func (s *MemoryLogStore) Alerts() domain.AlertStore { return memoryAlerts{s} }

type memoryAlerts struct{ s *MemoryLogStore }

func (a memoryAlerts) Append(_ context.Context, al domain.Alert) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if a.s.failWith != nil {
		return domain.WrapStore("append alert", a.s.failWith)
	}
	a.s.alerts = append(a.s.alerts, al)
	return nil
}

func (a memoryAlerts) FindRecent(_ context.Context, clientID string, vt domain.ViolationType, since time.Time) (*domain.Alert, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	if a.s.failWith != nil {
		return nil, domain.WrapStore("find alert", a.s.failWith)
	}
	for i := len(a.s.alerts) - 1; i >= 0; i-- {
		al := a.s.alerts[i]
		if al.ClientID == clientID && al.ViolationType == vt && !al.Timestamp.Before(since) {
			return &al, nil
		}
	}
	return nil, nil
}

func (a memoryAlerts) List(_ context.Context, limit int) ([]domain.Alert, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	if a.s.failWith != nil {
		return nil, domain.WrapStore("list alerts", a.s.failWith)
	}
	if limit <= 0 {
		limit = 50
	}
	out := slices.Clone(a.s.alerts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return paginate(out, limit, 0), nil
}
