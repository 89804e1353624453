package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"sentinela-gateway/admin"
	"sentinela-gateway/config"
	"sentinela-gateway/middleware/guard/application"
	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/infra"
	"sentinela-gateway/middleware/guard/metrics"
)

// app junta os stores e serviços montados a partir da configuração.
type app struct {
	cfg *config.Config
	log *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	counters domain.CounterStore
	logs     domain.LogStore
	alerts   domain.AlertStore
	stats    statsStore
	hub      *infra.Hub

	blocks *application.BlockList
	gate   *application.Gate
	sink   *application.LogSink
	engine *application.DetectionEngine

	health  map[string]admin.HealthCheck
	closers []func() error
}

type statsStore interface {
	domain.StatsStore
	domain.StatsReader
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		health:   make(map[string]admin.HealthCheck),
	}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)
	a.hub = infra.NewHub(infra.WithSubscriberGauge(a.metrics.SetSubscribers))
	a.closers = append(a.closers, func() error { a.hub.Close(); return nil })

	var blockStore domain.BlockStore
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)

		rs := infra.NewRedisStore(rdb)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		a.counters, blockStore = rs, rs
		a.stats = infra.NewRedisStatsStore(rdb)
		a.health["redis"] = rs.Ping
	} else {
		log.Warn("redis_disabled", "detail", "counters and block list are local to this process")
		ms := infra.NewMemoryStore()
		a.counters, blockStore = ms, ms
		a.stats = infra.NewMemoryStatsStore()
	}

	switch cfg.Storage.Driver {
	case "memory":
		ml := infra.NewMemoryLogStore()
		a.logs, a.alerts = ml, ml.Alerts()
	default:
		sq, err := infra.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sq.Close)
		a.logs, a.alerts = sq, sq.Alerts()
		a.health["sqlite"] = sq.Ping
	}

	a.blocks = application.NewBlockList(blockStore,
		application.WithBlockTimeout(cfg.Gate.StoreTimeout),
		application.WithBlockLogger(log),
		application.WithBlockMetrics(a.metrics),
	)

	if cfg.Gate.Enabled {
		a.gate, err = application.NewGate(a.counters, a.blocks, cfg.GateConfig(),
			application.WithGateLogger(log),
			application.WithGateMetrics(a.metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
	}

	sinkOpts := []application.SinkOption{
		application.WithPublisher(a.hub),
		application.WithWriteTimeout(cfg.Logging.WriteTimeout),
		application.WithSinkLogger(log),
		application.WithSinkMetrics(a.metrics),
	}
	if cfg.Logging.QueueSize > 0 {
		sinkOpts = append(sinkOpts, application.WithQueue(cfg.Logging.QueueSize, cfg.Logging.Workers))
	}
	a.sink = application.NewLogSink(a.logs, sinkOpts...)

	a.engine = application.NewDetectionEngine(a.logs, a.alerts, a.blocks, cfg.DetectionConfig(),
		application.WithEnginePublisher(a.hub),
		application.WithEngineLogger(log),
		application.WithEngineMetrics(a.metrics),
	)
	return a, nil
}

// close libera os recursos na ordem inversa da criação.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
