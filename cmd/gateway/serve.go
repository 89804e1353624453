package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sentinela-gateway/admin"
	"sentinela-gateway/middleware/guard"
	"sentinela-gateway/middleware/guard/infra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Sobe o gateway (proxy + superfície administrativa + detecção)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log, os.Stdout)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	target, err := url.Parse(a.cfg.Server.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid upstream url: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		a.log.Error("proxy_error", "path", r.URL.Path, "error", err)
		guard.WriteMessage(w, http.StatusBadGateway, "Bad gateway")
	}

	throttle := infra.NewBucketStore(a.cfg.Admin.ThrottleRPS, a.cfg.Admin.ThrottleBurst, infra.WithBucketLogger(a.log))
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.router(proxy, throttle),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	// o sink só para depois do Shutdown: requisições em voo ainda geram logs
	sinkCtx, stopSink := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSink()
	g.Go(func() error {
		a.log.Info("gateway_listening", "addr", srv.Addr, "upstream", target.String(),
			"gate", a.gate != nil, "detection", a.cfg.Detection.Enabled, "async_log", a.sink.Async())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		// hub primeiro: websockets abertos não seguram o Shutdown
		a.hub.Close()
		err := srv.Shutdown(shutdownCtx)
		stopSink()
		return err
	})
	g.Go(func() error { return a.sink.Run(sinkCtx) })
	g.Go(func() error { return throttle.RunJanitor(gctx) })
	if a.cfg.Detection.Enabled {
		g.Go(func() error { return a.engine.Start(gctx) })
	}

	err = g.Wait()
	a.log.Info("gateway_stopped", "error", err)
	return err
}

// router monta admin (rotas fixas), /metrics e o proxy para /api/* com a cadeia
// RequestLogger -> Gate -> Concurrency.
func (a *app) router(proxy http.Handler, throttle *infra.BucketStore) http.Handler {
	r := chi.NewRouter()

	admin.NewHandler(admin.Deps{
		Blocks: a.blocks,
		Logs:   a.logs,
		Alerts: a.alerts,
		Engine: a.engine,
		Stats:  a.stats,
		Hub:    a.hub,
		Health: a.health,
	}, admin.Options{
		Token:    a.cfg.Admin.Token,
		Throttle: throttle,
		Logger:   a.log,
	}).Register(r)

	if a.cfg.Metrics.Enabled {
		r.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	}

	business := chi.Chain(
		guard.RequestLogger(guard.LoggerOptions{
			Sink:               a.sink,
			Paths:              a.cfg.Logging.MonitoredPaths,
			ExcludeGateLatency: !a.cfg.Logging.IncludeGateLatency,
			CredentialHeaders:  a.cfg.Gate.CredentialHeaders,
		}),
		guard.Gate(guard.GateOptions{
			Gate:              a.gate,
			Stats:             a.stats,
			StatsRoutes:       a.cfg.Logging.MonitoredPaths,
			CredentialHeaders: a.cfg.Gate.CredentialHeaders,
			Logger:            a.log,
		}),
		guard.ConcurrencyMiddleware(guard.ConcurrencyOptions{
			Max:            a.cfg.Server.MaxConcurrent,
			AcquireTimeout: a.cfg.Server.AcquireTimeout,
		}),
	).Handler(proxy)

	r.Handle("/*", business)
	return r
}
