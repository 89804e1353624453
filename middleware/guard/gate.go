package guard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sentinela-gateway/middleware/guard/application"
	"sentinela-gateway/middleware/guard/domain"
)

type GateOptions struct {
	Gate *application.Gate
	// Stats recebe um evento por decisão (best-effort).
	Stats domain.StatsStore
	// StatsTimeout limita a escrita de Stats; 0 usa o StoreTimeout do gate.
	StatsTimeout time.Duration
	// StatsRoutes agrupa as estatísticas por padrão de rota; o resto vira "other".
	StatsRoutes       []string
	CredentialHeaders []string
	Logger            *slog.Logger
}

// otherRoute agrupa caminhos fora de StatsRoutes.
const otherRoute = "other"

// Gate aplica credencial, block list e rate limit antes do próximo handler.
// Rejeições saem como JSON {"message": ...} com 401/403/429.
func Gate(opts GateOptions) func(next http.Handler) http.Handler {
	if opts.Gate == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if len(opts.CredentialHeaders) == 0 {
		opts.CredentialHeaders = DefaultCredentialHeaders
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = opts.Gate.StoreTimeout()
	}
	if len(opts.StatsRoutes) == 0 {
		opts.StatsRoutes = DefaultMonitoredPaths
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ip := ClientIP(r)
			cred := Credential(r, opts.CredentialHeaders...)

			dec := evaluate(r.Context(), opts, application.AuthRequest{
				Credential: cred,
				ClientIP:   ip,
				Path:       r.URL.Path,
			})
			if m := MetaFrom(r.Context()); m != nil {
				m.record(dec.Identity, domain.NormalizeIP(ip), cred, dec.Outcome, time.Since(start))
			}

			if opts.Stats != nil {
				recordStats(r.Context(), opts, domain.StatsEvent{
					Key:     domain.Key(dec.Identity.String()),
					Outcome: dec.Outcome,
					Method:  r.Method,
					Path:    statsRoute(r.URL.Path, opts.StatsRoutes),
					At:      start,
				})
			}

			if !dec.Allowed() {
				writeRejection(w, dec)
				return
			}
			if dec.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// evaluate converte um pânico do gate no resultado "error" (500).
func evaluate(ctx context.Context, opts GateOptions, req application.AuthRequest) (dec domain.Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			opts.Logger.Error("gate_panic", "panic", fmt.Sprint(rec), "path", req.Path)
			dec = domain.Decision{
				Outcome:  domain.OutcomeError,
				Identity: domain.ResolveIdentity(req.Credential, "", req.ClientIP),
			}
		}
	}()
	return opts.Gate.Evaluate(ctx, req)
}

func recordStats(ctx context.Context, opts GateOptions, ev domain.StatsEvent) {
	ctx, cancel := context.WithTimeout(ctx, opts.StatsTimeout)
	defer cancel()
	if err := opts.Stats.Record(ctx, ev); err != nil {
		opts.Logger.Debug("gate_stats_failed", "error", err)
	}
}

// statsRoute devolve o padrão que casa com path, nunca o caminho cru.
func statsRoute(path string, routes []string) string {
	if p, ok := domain.MatchAny(path, routes); ok {
		return p
	}
	return otherRoute
}
