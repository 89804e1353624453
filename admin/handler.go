// Package admin expõe a superfície administrativa do gateway: block list, logs,
// estatísticas, alertas, disparo manual da detecção e o feed ao vivo (websocket).
//
// Estas rotas não passam pelo gate de clientes; são protegidas por throttle
// (token bucket) e, opcionalmente, pelo header X-Admin-Token.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"sentinela-gateway/middleware/guard"
	"sentinela-gateway/middleware/guard/application"
	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/infra"
)

const (
	defaultLogLimit   = 100
	maxLogLimit       = 1000
	defaultAlertLimit = 50
	adminTokenHeader  = "X-Admin-Token"
)

// Ranges aceitos em ?timeRange=; valores desconhecidos caem em 24h.
var timeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// HealthCheck é um componente verificado em /healthz (ex.: ping no Redis).
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Blocks *application.BlockList
	Logs   domain.LogStore
	Alerts domain.AlertStore
	Engine *application.DetectionEngine
	Stats  domain.StatsReader
	Hub    *infra.Hub
	Health map[string]HealthCheck
}

type Options struct {
	// Token vazio desliga a verificação de X-Admin-Token.
	Token    string
	Throttle domain.LimiterStore
	Logger   *slog.Logger
	Now      func() time.Time
}

type Handler struct {
	deps     Deps
	opts     Options
	validate *validator.Validate
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(deps Deps, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		deps:     deps,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: opts.Logger,
	}
}

// Register monta as rotas administrativas em r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		// chave por IP: o token ainda não foi verificado neste ponto
		r.Use(guard.Throttle(guard.ThrottleOptions{Store: h.opts.Throttle}))
		r.Use(h.requireToken)

		r.Get("/api/blocked", h.listBlocked)
		r.Post("/api/blocked", h.block)
		r.Delete("/api/blocked/{clientId}", h.unblock)

		r.Get("/api/logs", h.listLogs)
		r.Get("/api/logs/stats", h.logStats)
		r.Get("/api/alerts", h.listAlerts)
		r.Get("/api/gate/stats", h.gateStats)
		r.Post("/api/detection/run", h.runDetection)
		r.Get("/api/live", h.live)
	})
}

// Router devolve um chi.Router só com as rotas administrativas.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	if h.opts.Token == "" {
		return next
	}
	want := []byte(h.opts.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(adminTokenHeader)
		if got == "" {
			// navegadores não mandam header no upgrade do websocket
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			guard.WriteJSON(w, http.StatusUnauthorized, failure{Message: "admin token required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTickInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("admin_request_failed", "message", msg, "error", err)
	}
	guard.WriteJSON(w, status, failure{Message: msg, Error: err.Error()})
}

type blockRequest struct {
	ClientID string `json:"clientId" validate:"required,max=256"`
}

func (h *Handler) listBlocked(w http.ResponseWriter, r *http.Request) {
	members, err := h.deps.Blocks.List(r.Context())
	if err != nil {
		h.fail(w, "Failed to fetch blocked clients", err)
		return
	}
	guard.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "blocked": members})
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := guard.DecodeJSON(r, &req); err != nil {
		h.fail(w, "clientId required", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, "clientId required", errors.Join(domain.ErrValidation, err))
		return
	}
	if err := h.deps.Blocks.Block(r.Context(), req.ClientID, "admin"); err != nil {
		h.fail(w, "Failed to block client", err)
		return
	}
	guard.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "blocked": req.ClientID})
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	clientID, err := url.PathUnescape(chi.URLParam(r, "clientId"))
	if err != nil {
		h.fail(w, "clientId required", errors.Join(domain.ErrValidation, err))
		return
	}
	if err := h.deps.Blocks.Unblock(r.Context(), clientID); err != nil {
		h.fail(w, "Failed to unblock client", err)
		return
	}
	guard.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "unblocked": clientID})
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type logView struct {
	domain.RequestLogRecord
	Client clientInfo `json:"client"`
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q.Get("page"), 1, 0)
	limit := intParam(q.Get("limit"), defaultLogLimit, maxLogLimit)
	since := h.since(q.Get("timeRange"))

	filter := domain.LogFilter{
		Since:    since,
		Endpoint: q.Get("endpoint"),
		ClientID: q.Get("clientId"),
	}
	total, err := h.deps.Logs.Count(r.Context(), filter)
	if err != nil {
		h.fail(w, "Error fetching logs", err)
		return
	}

	filter.Newest = true
	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	recs, err := h.deps.Logs.Query(r.Context(), filter)
	if err != nil {
		h.fail(w, "Error fetching logs", err)
		return
	}

	logs := make([]logView, 0, len(recs))
	for _, rec := range recs {
		logs = append(logs, logView{RequestLogRecord: rec, Client: describeUserAgent(rec.UserAgent)})
	}
	guard.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"logs":    logs,
		"pagination": pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + int64(limit) - 1) / int64(limit),
		},
	})
}

func (h *Handler) logStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Logs.Stats(r.Context(), h.since(r.URL.Query().Get("timeRange")))
	if err != nil {
		h.fail(w, "Error fetching stats", err)
		return
	}
	guard.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), defaultAlertLimit, maxLogLimit)
	alerts, err := h.deps.Alerts.List(r.Context(), limit)
	if err != nil {
		h.fail(w, "Error fetching alerts", err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	guard.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "alerts": alerts})
}

func (h *Handler) gateStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stats == nil {
		guard.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "stats": domain.StatsSnapshot{}})
		return
	}
	snap, err := h.deps.Stats.Snapshot(r.Context())
	if err != nil {
		h.fail(w, "Error fetching gate stats", err)
		return
	}
	guard.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "stats": snap})
}

func (h *Handler) runDetection(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		guard.WriteJSON(w, http.StatusNotImplemented, failure{Message: "detection engine disabled"})
		return
	}
	report, err := h.deps.Engine.RunOnce(r.Context())
	if errors.Is(err, domain.ErrTickInProgress) {
		h.fail(w, "Detection already running", err)
		return
	}
	guard.WriteJSON(w, http.StatusOK, map[string]any{
		"success": err == nil,
		"report":  report,
		"alerts":  report.AlertsCreated(),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Health))
	for name, check := range h.deps.Health {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	guard.WriteJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func (h *Handler) since(rangeParam string) time.Time {
	d, ok := timeRanges[rangeParam]
	if !ok {
		d = timeRanges["24h"]
	}
	return h.opts.Now().Add(-d)
}

// intParam lê um inteiro positivo; inválido usa def, e ceiling > 0 limita o valor.
func intParam(raw string, def, ceiling int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if ceiling > 0 && n > ceiling {
		return ceiling
	}
	return n
}
