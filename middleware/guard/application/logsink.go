package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/metrics"
)

// LogSink persiste um registro por requisição monitorada e avisa o feed ao vivo.
// Erros de persistência são registrados e engolidos: nunca afetam a resposta.
//
// Sem WithQueue a escrita é síncrona (Submit espera o Append). Com fila, Submit
// só enfileira e Run consome com N workers; fila cheia descarta o registro.
type LogSink struct {
	store     domain.LogStore
	publisher domain.Publisher
	timeout   time.Duration

	queue   chan domain.RequestLogRecord
	workers int
	// stopped passa a true quando Run encerra; daí em diante Submit grava direto.
	mu      sync.RWMutex
	stopped bool

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type SinkOption func(*LogSink)

func WithPublisher(p domain.Publisher) SinkOption {
	return func(s *LogSink) { s.publisher = p }
}

func WithQueue(size, workers int) SinkOption {
	return func(s *LogSink) {
		if size > 0 {
			s.queue = make(chan domain.RequestLogRecord, size)
			s.workers = max(workers, 1)
		}
	}
}

func WithWriteTimeout(d time.Duration) SinkOption {
	return func(s *LogSink) { s.timeout = d }
}

func WithSinkLogger(l *slog.Logger) SinkOption {
	return func(s *LogSink) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSinkMetrics(m *metrics.Metrics) SinkOption {
	return func(s *LogSink) { s.metrics = m }
}

func NewLogSink(store domain.LogStore, opts ...SinkOption) *LogSink {
	s := &LogSink{
		store:   store,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Async indica se o sink usa fila.
func (s *LogSink) Async() bool { return s.queue != nil }

// Submit entrega um registro ao sink. Nunca retorna erro.
func (s *LogSink) Submit(rec domain.RequestLogRecord) {
	if s.queue == nil {
		_ = s.Write(context.Background(), rec)
		return
	}
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		_ = s.Write(context.Background(), rec)
		return
	}
	defer s.mu.RUnlock()
	select {
	case s.queue <- rec:
	default:
		s.metrics.LogWrite("dropped")
		s.logger.Warn("log_sink_queue_full", "endpoint", rec.Endpoint, "client_id", rec.ClientID)
	}
}

// Write grava o registro e, só depois de gravado, publica o evento newLog.
func (s *LogSink) Write(ctx context.Context, rec domain.RequestLogRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	wctx, cancel := withTimeout(ctx, s.timeout)
	err := s.store.Append(wctx, rec)
	cancel()
	if err != nil {
		s.metrics.LogWrite("error")
		s.metrics.StoreError("log_sink")
		s.logger.Error("log_persist_failed",
			"endpoint", rec.Endpoint,
			"client_id", rec.ClientID,
			"error", err,
		)
		return err
	}
	s.metrics.LogWrite("ok")
	s.publish(domain.Event{Type: domain.EventNewLog, Data: rec})
	return nil
}

func (s *LogSink) publish(ev domain.Event) {
	if s.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("live_publish_panic", "panic", r)
		}
	}()
	s.publisher.Publish(ev)
}

// Run consome a fila até o ctx encerrar e então drena o que sobrou.
// Submits posteriores ao dreno são gravados de forma síncrona.
// Em modo síncrono apenas espera o ctx.
func (s *LogSink) Run(ctx context.Context) error {
	if s.queue == nil {
		<-ctx.Done()
		return nil
	}

	// escritas usam ctx próprio: cancelar o Run não aborta um Append em andamento
	wctx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for range s.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case rec := <-s.queue:
					_ = s.Write(wctx, rec)
				}
			}
		}()
	}
	wg.Wait()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	for {
		select {
		case rec := <-s.queue:
			_ = s.Write(wctx, rec)
		default:
			return nil
		}
	}
}
