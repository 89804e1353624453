package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/metrics"
)

type DetectionConfig struct {
	Interval time.Duration

	// Regra A: volume por identidade.
	MaxRequestsPerMinute int
	RateWindow           time.Duration
	RateDedup            time.Duration

	// Regra B: 401/403 por identidade.
	MaxFailedAuth int
	AuthWindow    time.Duration
	AuthDedup     time.Duration

	// Regra C: rota sensível sem a rota de pré-condição na mesma janela.
	SequenceWindow       time.Duration
	SensitiveEndpoint    string
	PreconditionEndpoint string

	// RuleTimeout limita cada regra; estourou, a regra aborta e a próxima roda.
	RuleTimeout time.Duration
}

func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Interval:             time.Minute,
		MaxRequestsPerMinute: 100,
		RateWindow:           time.Minute,
		RateDedup:            2 * time.Minute,
		MaxFailedAuth:        20,
		AuthWindow:           10 * time.Minute,
		AuthDedup:            30 * time.Minute,
		SequenceWindow:       5 * time.Minute,
		SensitiveEndpoint:    "/api/transaction",
		PreconditionEndpoint: "/api/balance",
		RuleTimeout:          10 * time.Second,
	}
}

type EngineState int32

const (
	StateIdle EngineState = iota
	StateRunning
)

func (s EngineState) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// RuleReport resume o que uma regra fez em um tick.
type RuleReport struct {
	Rule      string `json:"rule"`
	Offenders int    `json:"offenders"`
	Alerts    int    `json:"alerts"`
	Blocked   int    `json:"blocked"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

type TickReport struct {
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
	Rules    []RuleReport  `json:"rules"`
}

func (r TickReport) AlertsCreated() int {
	n := 0
	for _, rr := range r.Rules {
		n += rr.Alerts
	}
	return n
}

// Err junta os erros das regras (nil quando todas rodaram limpas).
func (r TickReport) Err() error {
	var errs []error
	for _, rr := range r.Rules {
		if rr.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rr.Rule, rr.Err))
		}
	}
	return errors.Join(errs...)
}

// DetectionEngine minera o log em janelas recentes, cria alertas deduplicados e
// realimenta a block list. Ticks nunca se sobrepõem: RunOnce durante um tick
// em andamento retorna ErrTickInProgress.
type DetectionEngine struct {
	logs   domain.LogStore
	alerts domain.AlertStore
	blocks *BlockList
	cfg    DetectionConfig

	now       func() time.Time
	publisher domain.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	state atomic.Int32
	last  atomic.Pointer[TickReport]
}

type EngineOption func(*DetectionEngine)

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *DetectionEngine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithEnginePublisher(p domain.Publisher) EngineOption {
	return func(e *DetectionEngine) { e.publisher = p }
}

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *DetectionEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *DetectionEngine) { e.metrics = m }
}

func NewDetectionEngine(logs domain.LogStore, alerts domain.AlertStore, blocks *BlockList, cfg DetectionConfig, opts ...EngineOption) *DetectionEngine {
	e := &DetectionEngine{
		logs:   logs,
		alerts: alerts,
		blocks: blocks,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer("sentinela-gateway/detection"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *DetectionEngine) State() EngineState { return EngineState(e.state.Load()) }

// LastReport devolve o último tick concluído (nil antes do primeiro).
func (e *DetectionEngine) LastReport() *TickReport { return e.last.Load() }

// Start roda um tick a cada Interval até o ctx encerrar. Um tick lento
// apenas atrasa o próximo.
func (e *DetectionEngine) Start(ctx context.Context) error {
	interval := e.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	e.logger.Info("detection_engine_started", "interval", interval.String())

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("detection_engine_stopped")
			return nil
		case <-t.C:
			if _, err := e.RunOnce(ctx); err != nil {
				e.logger.Warn("detection_tick_failed", "error", err)
			}
		}
	}
}

// RunOnce executa as três regras em sequência com o relógio atual.
// Falha de uma regra não impede as seguintes; o erro retornado junta as falhas.
func (e *DetectionEngine) RunOnce(ctx context.Context) (report TickReport, err error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		e.metrics.Tick("skipped", 0)
		return TickReport{}, domain.ErrTickInProgress
	}
	defer e.state.Store(int32(StateIdle))

	now := e.now()
	report.At = now
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "detection.tick")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detection tick panic: %v", r)
			e.metrics.Tick("panic", time.Since(start).Seconds())
			e.logger.Error("detection_tick_panic", "panic", r)
			span.SetStatus(codes.Error, "panic")
		}
	}()

	rules := []struct {
		name string
		run  func(context.Context, time.Time) RuleReport
	}{
		{"high_request_rate", e.detectHighRequestRate},
		{"unauthorized_access", e.detectUnauthorizedAccess},
		{"unusual_sequence", e.detectUnusualSequence},
	}
	for _, r := range rules {
		report.Rules = append(report.Rules, e.runRule(ctx, r.name, now, r.run))
	}

	report.Duration = time.Since(start)
	err = report.Err()

	status := "success"
	if err != nil {
		status = "partial"
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("alerts.created", report.AlertsCreated()))
	e.metrics.Tick(status, report.Duration.Seconds())
	e.logger.Info("detection_tick_completed",
		"at", now,
		"alerts_created", report.AlertsCreated(),
		"duration", report.Duration.String(),
		"status", status,
	)
	e.last.Store(&report)
	return report, err
}

func (e *DetectionEngine) runRule(ctx context.Context, name string, now time.Time, fn func(context.Context, time.Time) RuleReport) (rep RuleReport) {
	ctx, span := e.tracer.Start(ctx, "detection.rule", trace.WithAttributes(attribute.String("rule", name)))
	defer span.End()

	ctx, cancel := withTimeout(ctx, e.cfg.RuleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			rep = RuleReport{Rule: name, Err: fmt.Errorf("panic: %v", r)}
		}
		if rep.Err != nil {
			rep.Error = rep.Err.Error()
			span.RecordError(rep.Err)
			span.SetStatus(codes.Error, rep.Err.Error())
			e.metrics.StoreError("detection")
			e.logger.Error("detection_rule_failed", "rule", name, "error", rep.Err)
		}
	}()

	rep = fn(ctx, now)
	rep.Rule = name
	span.SetAttributes(attribute.Int("offenders", rep.Offenders), attribute.Int("alerts", rep.Alerts))
	return rep
}

// Regra A: mais de MaxRequestsPerMinute na janela. O bloqueio é renovado
// mesmo quando o alerta foi deduplicado.
func (e *DetectionEngine) detectHighRequestRate(ctx context.Context, now time.Time) (rep RuleReport) {
	recs, err := e.logs.Query(ctx, domain.LogFilter{Since: now.Add(-e.cfg.RateWindow)})
	if err != nil {
		rep.Err = err
		return rep
	}

	for _, o := range offenders(recs, e.cfg.MaxRequestsPerMinute) {
		rep.Offenders++
		created, err := e.raiseOnce(ctx, now, o.id, domain.ViolationRateLimitExceeded, domain.SeverityHigh,
			now.Add(-e.cfg.RateDedup),
			map[string]any{"requestsPerMinute": o.count, "windowSeconds": int(e.cfg.RateWindow.Seconds())})
		if err != nil {
			rep.Err = err
			return rep
		}
		if created {
			rep.Alerts++
		}
		if err := e.blocks.Block(ctx, o.id, "detection"); err != nil {
			rep.Err = err
			return rep
		}
		rep.Blocked++
	}
	return rep
}

// Regra B: rajadas de 401/403. Só bloqueia quando um alerta novo é criado.
func (e *DetectionEngine) detectUnauthorizedAccess(ctx context.Context, now time.Time) (rep RuleReport) {
	recs, err := e.logs.Query(ctx, domain.LogFilter{
		Since:       now.Add(-e.cfg.AuthWindow),
		StatusCodes: []int{401, 403},
	})
	if err != nil {
		rep.Err = err
		return rep
	}

	for _, o := range offenders(recs, e.cfg.MaxFailedAuth) {
		rep.Offenders++
		created, err := e.raiseOnce(ctx, now, o.id, domain.ViolationUnauthorizedAccess, domain.SeverityMedium,
			now.Add(-e.cfg.AuthDedup),
			map[string]any{"failedAttempts": o.count, "windowMinutes": int(e.cfg.AuthWindow.Minutes())})
		if err != nil {
			rep.Err = err
			return rep
		}
		if !created {
			e.logger.Debug("alert_deduplicated", "client_id", o.id, "violation", domain.ViolationUnauthorizedAccess)
			continue
		}
		rep.Alerts++
		if err := e.blocks.Block(ctx, o.id, "detection"); err != nil {
			rep.Err = err
			return rep
		}
		rep.Blocked++
	}
	return rep
}

// Regra C: rota sensível sem a pré-condição para a mesma identidade. Informativa, não bloqueia.
func (e *DetectionEngine) detectUnusualSequence(ctx context.Context, now time.Time) (rep RuleReport) {
	since := now.Add(-e.cfg.SequenceWindow)

	sensitive, err := e.logs.Query(ctx, domain.LogFilter{Since: since, Endpoint: e.cfg.SensitiveEndpoint})
	if err != nil {
		rep.Err = err
		return rep
	}
	if len(sensitive) == 0 {
		return rep
	}
	pre, err := e.logs.Query(ctx, domain.LogFilter{Since: since, Endpoint: e.cfg.PreconditionEndpoint})
	if err != nil {
		rep.Err = err
		return rep
	}

	checked := make(map[string]struct{}, len(pre))
	for _, rec := range pre {
		checked[rec.Ref().Canonical()] = struct{}{}
	}

	for _, o := range offenders(sensitive, 0) {
		if _, ok := checked[o.id]; ok {
			continue
		}
		rep.Offenders++
		created, err := e.raiseOnce(ctx, now, o.id, domain.ViolationUnusualSequence, domain.SeverityLow, since,
			map[string]any{
				"accessed": e.cfg.SensitiveEndpoint,
				"missing":  e.cfg.PreconditionEndpoint,
				"calls":    o.count,
			})
		if err != nil {
			rep.Err = err
			return rep
		}
		if created {
			rep.Alerts++
		}
	}
	return rep
}

// raiseOnce cria o alerta se não houver outro do mesmo tipo para a identidade desde since.
func (e *DetectionEngine) raiseOnce(ctx context.Context, now time.Time, clientID string, vt domain.ViolationType, sev domain.Severity, since time.Time, details map[string]any) (bool, error) {
	existing, err := e.alerts.FindRecent(ctx, clientID, vt, since)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	a := domain.Alert{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		ViolationType: vt,
		Severity:      sev,
		Timestamp:     now,
		Details:       details,
	}
	if err := e.alerts.Append(ctx, a); err != nil {
		return false, err
	}

	e.metrics.Alert(string(vt))
	e.logger.Warn("alert_created", "client_id", clientID, "violation", vt, "severity", sev)
	if e.publisher != nil {
		e.publisher.Publish(domain.Event{Type: domain.EventNewAlert, Data: a})
	}
	return true, nil
}

type offender struct {
	id    string
	count int
}

// offenders agrupa por identidade canônica (registros legados caem em "ip:<clientIp>")
// e devolve quem passou de threshold, em ordem de identidade.
func offenders(recs []domain.RequestLogRecord, threshold int) []offender {
	counts := make(map[string]int)
	for _, rec := range recs {
		counts[rec.Ref().Canonical()]++
	}

	var out []offender
	for id, n := range counts {
		if n > threshold {
			out = append(out, offender{id: id, count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
