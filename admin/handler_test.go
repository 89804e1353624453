package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"sentinela-gateway/middleware/guard/application"
	"sentinela-gateway/middleware/guard/domain"
	"sentinela-gateway/middleware/guard/infra"
)

type AdminSuite struct {
	suite.Suite
	now    time.Time
	store  *infra.MemoryStore
	logs   *infra.MemoryLogStore
	stats  *infra.MemoryStatsStore
	hub    *infra.Hub
	engine *application.DetectionEngine
	router http.Handler
}

func TestAdminSuite(t *testing.T) {
	suite.Run(t, new(AdminSuite))
}

func (s *AdminSuite) SetupTest() {
	s.now = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.store = infra.NewMemoryStore()
	s.logs = infra.NewMemoryLogStore()
	s.stats = infra.NewMemoryStatsStore()
	s.hub = infra.NewHub()
	blocks := application.NewBlockList(s.store)
	s.engine = application.NewDetectionEngine(s.logs, s.logs.Alerts(), blocks,
		application.DefaultDetectionConfig(), application.WithEngineClock(clock))

	h := NewHandler(Deps{
		Blocks: blocks,
		Logs:   s.logs,
		Alerts: s.logs.Alerts(),
		Engine: s.engine,
		Stats:  s.stats,
		Hub:    s.hub,
		Health: map[string]HealthCheck{"redis": func(context.Context) error { return nil }},
	}, Options{Now: clock})
	s.router = h.Router()
}

func (s *AdminSuite) TearDownTest() {
	s.hub.Close()
}

func (s *AdminSuite) do(method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	var out map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func (s *AdminSuite) seedLogs(n int, age time.Duration, status int) {
	for i := range n {
		s.Require().NoError(s.logs.Append(context.Background(), domain.RequestLogRecord{
			ID:             fmt.Sprintf("%s-%d-%d", age, status, i),
			Timestamp:      s.now.Add(-age + time.Duration(i)*time.Millisecond),
			ClientID:       "token:demo-key",
			ClientIP:       "10.0.0.1",
			Endpoint:       "/api/balance",
			Method:         "GET",
			StatusCode:     status,
			ResponseTimeMs: 12,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		}))
	}
}

func (s *AdminSuite) TestBlockLifecycle() {
	w, body := s.do(http.MethodPost, "/api/blocked", `{"clientId":"ip:10.0.0.9"}`)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ip:10.0.0.9", body["blocked"])

	_, body = s.do(http.MethodGet, "/api/blocked", "")
	s.Equal([]any{"ip:10.0.0.9"}, body["blocked"])

	w, body = s.do(http.MethodDelete, "/api/blocked/ip:10.0.0.9", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ip:10.0.0.9", body["unblocked"])

	_, body = s.do(http.MethodGet, "/api/blocked", "")
	s.Equal([]any{}, body["blocked"])
}

func (s *AdminSuite) TestBlockRequiresClientID() {
	for _, payload := range []string{`{}`, `{"clientId":""}`, `not json`} {
		w, body := s.do(http.MethodPost, "/api/blocked", payload)
		s.Equal(http.StatusBadRequest, w.Code, payload)
		s.Equal(false, body["success"])
		s.Equal("clientId required", body["message"])
	}
}

func (s *AdminSuite) TestBlockStoreFailureIs503() {
	s.store.SetFailure(assert.AnError)
	w, body := s.do(http.MethodGet, "/api/blocked", "")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal(false, body["success"])
}

func (s *AdminSuite) TestLogsPaginationAndTimeRange() {
	s.seedLogs(5, 30*time.Minute, 200)
	s.seedLogs(3, 3*time.Hour, 200)

	_, body := s.do(http.MethodGet, "/api/logs?timeRange=1h&page=2&limit=2", "")
	pg := body["pagination"].(map[string]any)
	s.EqualValues(2, pg["page"])
	s.EqualValues(2, pg["limit"])
	s.EqualValues(5, pg["total"])
	s.EqualValues(3, pg["pages"])

	logs := body["logs"].([]any)
	s.Require().Len(logs, 2)
	first := logs[0].(map[string]any)
	client := first["client"].(map[string]any)
	s.Equal("Chrome", client["browser"])
	s.Equal(false, client["bot"])

	_, body = s.do(http.MethodGet, "/api/logs?timeRange=bogus&limit=abc", "")
	pg = body["pagination"].(map[string]any)
	s.EqualValues(8, pg["total"])
	s.EqualValues(100, pg["limit"])
}

func (s *AdminSuite) TestLogStats() {
	s.seedLogs(3, 10*time.Minute, 200)
	s.seedLogs(1, 10*time.Minute, 500)

	_, body := s.do(http.MethodGet, "/api/logs/stats?timeRange=1h", "")
	st := body["stats"].(map[string]any)
	s.EqualValues(4, st["totalHits"])
	s.EqualValues(75, st["successRate"])
	s.EqualValues(1, st["failedRequests"])
	s.EqualValues(12, st["avgResponseTime"])
}

func (s *AdminSuite) TestDetectionRunAndAlerts() {
	s.seedLogs(101, 50*time.Second, 200)

	w, body := s.do(http.MethodPost, "/api/detection/run", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(true, body["success"])
	s.EqualValues(1, body["alerts"])

	_, body = s.do(http.MethodGet, "/api/alerts?limit=10", "")
	alerts := body["alerts"].([]any)
	s.Require().Len(alerts, 1)
	s.Equal("RATE_LIMIT_EXCEEDED", alerts[0].(map[string]any)["violationType"])

	_, body = s.do(http.MethodGet, "/api/blocked", "")
	s.Equal([]any{"token:demo-key"}, body["blocked"])
}

func (s *AdminSuite) TestGateStatsAndHealth() {
	s.Require().NoError(s.stats.Record(context.Background(), domain.StatsEvent{
		Outcome: domain.OutcomeBlocked, Method: "GET", Path: "/api/balance",
	}))

	_, body := s.do(http.MethodGet, "/api/gate/stats", "")
	total := body["stats"].(map[string]any)["total"].(map[string]any)
	s.EqualValues(1, total["blocked"])

	w, body := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ok", body["status"])
}

func TestAdmin_TokenRequired(t *testing.T) {
	logs := infra.NewMemoryLogStore()
	h := NewHandler(Deps{
		Blocks: application.NewBlockList(infra.NewMemoryStore()),
		Logs:   logs,
		Alerts: logs.Alerts(),
	}, Options{Token: "s3cret"})
	router := h.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/blocked", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/blocked", nil)
	r.Header.Set("X-Admin-Token", "s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	// /healthz fica fora da verificação
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdmin_ThrottleRejectsBurst(t *testing.T) {
	logs := infra.NewMemoryLogStore()
	h := NewHandler(Deps{
		Blocks: application.NewBlockList(infra.NewMemoryStore()),
		Logs:   logs,
		Alerts: logs.Alerts(),
	}, Options{Throttle: infra.NewBucketStore(0.01, 2)})
	router := h.Router()

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestAdmin_ThrottleIgnoresUnverifiedToken(t *testing.T) {
	logs := infra.NewMemoryLogStore()
	h := NewHandler(Deps{
		Blocks: application.NewBlockList(infra.NewMemoryStore()),
		Logs:   logs,
		Alerts: logs.Alerts(),
	}, Options{Token: "secret", Throttle: infra.NewBucketStore(0.01, 2)})
	router := h.Router()

	codes := make([]int, 0, 3)
	for i := range 3 {
		r := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
		r.RemoteAddr = "198.51.100.4:4000"
		r.Header.Set(adminTokenHeader, fmt.Sprintf("guess-%d", i))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestDescribeUserAgent(t *testing.T) {
	assert.Equal(t, clientInfo{Browser: "unknown", OS: "unknown"}, describeUserAgent("N/A"))

	bot := describeUserAgent("Googlebot/2.1 (+http://www.google.com/bot.html)")
	assert.True(t, bot.Bot)

	mobile := describeUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	assert.True(t, mobile.Mobile)
	assert.Equal(t, "Safari", mobile.Browser)
}

func TestIntParam(t *testing.T) {
	assert.Equal(t, 7, intParam("7", 1, 0))
	assert.Equal(t, 1, intParam("0", 1, 0))
	assert.Equal(t, 100, intParam("", 100, 1000))
	assert.Equal(t, 1000, intParam("5000", 100, 1000))
}
