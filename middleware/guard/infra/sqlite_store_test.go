package infra

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"sentinela-gateway/middleware/guard/domain"
)

type SQLiteStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *SQLiteStore
	base  time.Time
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) SetupTest() {
	store, err := NewSQLiteStore(":memory:")
	s.Require().NoError(err)
	s.store = store
	s.ctx = context.Background()
	s.base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *SQLiteStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *SQLiteStoreSuite) appendLog(i int, clientID, endpoint string, status int, latency float64) {
	s.Require().NoError(s.store.Append(s.ctx, domain.RequestLogRecord{
		ID:             fmt.Sprintf("log-%d", i),
		Timestamp:      s.base.Add(time.Duration(i) * time.Second),
		ClientIP:       "10.0.0.1",
		ClientID:       clientID,
		Endpoint:       endpoint,
		Method:         "GET",
		StatusCode:     status,
		ResponseTimeMs: latency,
		UserAgent:      "N/A",
		AuthStatus:     domain.OutcomeAuthorized,
	}))
}

func (s *SQLiteStoreSuite) TestQueryOrderingAndFilters() {
	s.appendLog(0, "token:a", "/api/balance", 200, 10)
	s.appendLog(1, "token:b", "/api/transaction", 401, 20)
	s.appendLog(2, "token:a", "/api/transaction", 403, 30)
	s.appendLog(3, "", "/api/history", 200, 40)

	all, err := s.store.Query(s.ctx, domain.LogFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	s.Equal("log-0", all[0].ID)
	s.Equal(s.base, all[0].Timestamp)

	newest, err := s.store.Query(s.ctx, domain.LogFilter{Newest: true, Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(newest, 2)
	s.Equal("log-2", newest[0].ID)
	s.Equal("log-1", newest[1].ID)

	failed, err := s.store.Query(s.ctx, domain.LogFilter{StatusCodes: []int{401, 403}, Since: s.base.Add(2 * time.Second)})
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal("token:a", failed[0].ClientID)

	n, err := s.store.Count(s.ctx, domain.LogFilter{Endpoint: "/api/transaction"})
	s.Require().NoError(err)
	s.EqualValues(2, n)

	legacy, err := s.store.Query(s.ctx, domain.LogFilter{Endpoint: "/api/history"})
	s.Require().NoError(err)
	s.Require().Len(legacy, 1)
	s.Equal("ip:10.0.0.1", legacy[0].Ref().Canonical())
}

func (s *SQLiteStoreSuite) TestStats() {
	s.appendLog(0, "token:a", "/api/balance", 200, 10)
	s.appendLog(1, "token:a", "/api/balance", 201, 20)
	s.appendLog(2, "token:a", "/api/balance", 429, 31)

	st, err := s.store.Stats(s.ctx, s.base)
	s.Require().NoError(err)
	s.EqualValues(3, st.TotalHits)
	s.EqualValues(1, st.FailedRequests)
	s.Equal(66.7, st.SuccessRate)
	s.Equal(20.0, st.AvgResponseTime)

	empty, err := s.store.Stats(s.ctx, s.base.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(domain.LogStats{}, empty)
}

func (s *SQLiteStoreSuite) TestAlertsDedupLookupAndList() {
	alerts := s.store.Alerts()
	for i, vt := range []domain.ViolationType{domain.ViolationRateLimitExceeded, domain.ViolationUnusualSequence} {
		s.Require().NoError(alerts.Append(s.ctx, domain.Alert{
			ID:            fmt.Sprintf("al-%d", i),
			ClientID:      "token:a",
			ViolationType: vt,
			Severity:      domain.SeverityHigh,
			Timestamp:     s.base.Add(time.Duration(i) * time.Minute),
			Details:       map[string]any{"requestsPerMinute": 150},
		}))
	}

	found, err := alerts.FindRecent(s.ctx, "token:a", domain.ViolationRateLimitExceeded, s.base.Add(-time.Minute))
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal("al-0", found.ID)
	s.Equal(float64(150), found.Details["requestsPerMinute"])

	missing, err := alerts.FindRecent(s.ctx, "token:a", domain.ViolationRateLimitExceeded, s.base.Add(time.Second))
	s.Require().NoError(err)
	s.Nil(missing)

	list, err := alerts.List(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("al-1", list[0].ID)
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinela.db")

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Append(context.Background(), domain.RequestLogRecord{ID: "a", Timestamp: time.Now()}))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.Count(context.Background(), domain.LogFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, s2.Ping(context.Background()))
}
