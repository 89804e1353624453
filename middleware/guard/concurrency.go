package guard

import (
	"net/http"
	"time"

	"sentinela-gateway/middleware/guard/application"
	"sentinela-gateway/middleware/guard/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware limita requisições simultâneas ao upstream; Max <= 0 desliga.
// Sem vaga dentro do timeout responde 503.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	svc := application.ConcurrencyService{
		Pool:    infra.NewChanPool(opts.Max),
		Timeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				WriteMessage(w, http.StatusServiceUnavailable, "Server busy")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
