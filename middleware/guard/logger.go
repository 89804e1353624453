package guard

import (
	"net/http"
	"time"

	"sentinela-gateway/middleware/guard/domain"
)

// DefaultMonitoredPaths são as rotas de negócio registradas no log.
var DefaultMonitoredPaths = []string{"/api/transaction", "/api/history", "/api/balance"}

// RecordSink recebe os registros prontos (ex.: application.LogSink).
type RecordSink interface {
	Submit(rec domain.RequestLogRecord)
}

type LoggerOptions struct {
	Sink RecordSink
	// Paths são casados exatamente ou como prefixo de sub-caminho.
	Paths []string
	// ExcludeGateLatency desconta do tempo de resposta o tempo gasto no gate.
	ExcludeGateLatency bool
	CredentialHeaders  []string
	Now                func() time.Time
}

// RequestLogger grava um registro por requisição monitorada depois que o
// handler terminou. Deve envolver o Gate para receber identidade/resultado.
func RequestLogger(opts LoggerOptions) func(next http.Handler) http.Handler {
	if opts.Sink == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Paths == nil {
		opts.Paths = DefaultMonitoredPaths
	}
	if len(opts.CredentialHeaders) == 0 {
		opts.CredentialHeaders = DefaultCredentialHeaders
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if _, ok := domain.MatchAny(path, opts.Paths); !ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ctx, meta := WithMeta(r.Context())
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(ctx))
			elapsed := time.Since(start)

			id, ip, token, outcome, gateTime := meta.snapshot()
			if opts.ExcludeGateLatency {
				elapsed = max(elapsed-gateTime, 0)
			}
			// gate não rodou: deriva de novo a partir da requisição
			if ip == "" {
				ip = ClientIP(r)
			}
			if token == "" {
				token = Credential(r, opts.CredentialHeaders...)
			}
			if id.IsZero() {
				id = domain.ResolveIdentity(token, "", ip)
			}
			if outcome == "" {
				outcome = domain.OutcomeUnknown
			}
			ua := r.UserAgent()
			if ua == "" {
				ua = "N/A"
			}

			opts.Sink.Submit(domain.RequestLogRecord{
				Timestamp:      opts.Now(),
				ClientIP:       ip,
				ClientID:       id.String(),
				Endpoint:       path,
				Method:         r.Method,
				StatusCode:     sw.Status(),
				ResponseTimeMs: domain.LatencyMillis(elapsed),
				APIToken:       token,
				UserAgent:      ua,
				AuthStatus:     outcome,
			})
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap deixa http.ResponseController (flush do reverse proxy) achar o writer original.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
