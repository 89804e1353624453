// Package metrics concentra as métricas Prometheus do guard.
//
// Todos os métodos aceitam receptor nil, assim os componentes funcionam sem métricas.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sentinela"

type Metrics struct {
	GateDecisions     *prometheus.CounterVec
	StoreErrors       *prometheus.CounterVec
	LogWrites         *prometheus.CounterVec
	DetectionTicks    *prometheus.CounterVec
	DetectionDuration prometheus.Histogram
	AlertsCreated     *prometheus.CounterVec
	BlocksApplied     *prometheus.CounterVec
	LiveSubscribers   prometheus.Gauge
}

// New cria e registra as métricas no registry informado.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		GateDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Gate decisions by authorization outcome",
		}, []string{"outcome"}),
		StoreErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store failures handled without failing the caller",
		}, []string{"component"}), // gate, log_sink, detection
		LogWrites: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_writes_total",
			Help:      "Request log writes by result",
		}, []string{"result"}), // ok, error, dropped
		DetectionTicks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_ticks_total",
			Help:      "Detection engine ticks by status",
		}, []string{"status"}), // success, partial, skipped, panic
		DetectionDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_tick_duration_seconds",
			Help:      "Duration of detection ticks",
			Buckets:   prometheus.DefBuckets,
		}),
		AlertsCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts created by violation type",
		}, []string{"violation"}),
		BlocksApplied: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_applied_total",
			Help:      "Block list writes by source",
		}, []string{"source"}), // gate, detection, admin
		LiveSubscribers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Connected live feed subscribers",
		}),
	}
}

func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StoreError(component string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(component).Inc()
}

func (m *Metrics) LogWrite(result string) {
	if m == nil {
		return
	}
	m.LogWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) Tick(status string, seconds float64) {
	if m == nil {
		return
	}
	m.DetectionTicks.WithLabelValues(status).Inc()
	if seconds > 0 {
		m.DetectionDuration.Observe(seconds)
	}
}

func (m *Metrics) Alert(violation string) {
	if m == nil {
		return
	}
	m.AlertsCreated.WithLabelValues(violation).Inc()
}

func (m *Metrics) Block(source string) {
	if m == nil {
		return
	}
	m.BlocksApplied.WithLabelValues(source).Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.LiveSubscribers.Set(float64(n))
}
