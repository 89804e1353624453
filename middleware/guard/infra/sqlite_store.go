package infra

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinela-gateway/middleware/guard/domain"

	_ "modernc.org/sqlite" // driver SQLite em Go puro (sem CGO)
)

var sqliteMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS api_logs (
    id               TEXT PRIMARY KEY,
    ts               INTEGER NOT NULL,
    client_ip        TEXT NOT NULL DEFAULT '',
    client_id        TEXT NOT NULL DEFAULT '',
    endpoint         TEXT NOT NULL DEFAULT '',
    method           TEXT NOT NULL DEFAULT '',
    status_code      INTEGER NOT NULL DEFAULT 0,
    response_time_ms REAL NOT NULL DEFAULT 0,
    api_token        TEXT NOT NULL DEFAULT '',
    user_agent       TEXT NOT NULL DEFAULT '',
    auth_status      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_api_logs_ts        ON api_logs(ts);
CREATE INDEX IF NOT EXISTS idx_api_logs_client_ts ON api_logs(client_id, ts);
CREATE INDEX IF NOT EXISTS idx_api_logs_ep_ts     ON api_logs(endpoint, ts);

CREATE TABLE IF NOT EXISTS alerts (
    id             TEXT PRIMARY KEY,
    client_id      TEXT NOT NULL,
    violation_type TEXT NOT NULL,
    severity       TEXT NOT NULL,
    ts             INTEGER NOT NULL,
    details        TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(client_id, violation_type, ts);
CREATE INDEX IF NOT EXISTS idx_alerts_ts    ON alerts(ts);
`,
	},
}

// SQLiteStore implementa domain.LogStore e domain.AlertStore.
//
// Timestamps são gravados como unix nanos (INTEGER) para ordenar sem depender de
// formato de texto.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ domain.LogStore   = (*SQLiteStore)(nil)
	_ domain.AlertStore = sqliteAlerts{}
)

// NewSQLiteStore abre (ou cria) o banco em path e aplica as migrações pendentes.
// ":memory:" gera um banco efêmero (uma conexão só, senão cada conexão veria outro banco).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range sqliteMigrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return domain.WrapStore("sqlite ping", s.db.PingContext(ctx))
}

func (s *SQLiteStore) Append(ctx context.Context, rec domain.RequestLogRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO api_logs(id, ts, client_ip, client_id, endpoint, method, status_code,
                             response_time_ms, api_token, user_agent, auth_status)
        VALUES(?,?,?,?,?,?,?,?,?,?,?)
    `,
		rec.ID, rec.Timestamp.UnixNano(), rec.ClientIP, rec.ClientID, rec.Endpoint, rec.Method,
		rec.StatusCode, rec.ResponseTimeMs, rec.APIToken, rec.UserAgent, string(rec.AuthStatus),
	)
	return domain.WrapStore("append log", err)
}

func (s *SQLiteStore) Query(ctx context.Context, f domain.LogFilter) ([]domain.RequestLogRecord, error) {
	where, args := logWhere(f)
	query := `SELECT id, ts, client_ip, client_id, endpoint, method, status_code,
                     response_time_ms, api_token, user_agent, auth_status
              FROM api_logs` + where
	if f.Newest {
		query += ` ORDER BY ts DESC, rowid DESC`
	} else {
		query += ` ORDER BY ts ASC, rowid ASC`
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, f.Limit, max(f.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapStore("query logs", err)
	}
	defer rows.Close()

	var out []domain.RequestLogRecord
	for rows.Next() {
		var (
			rec    domain.RequestLogRecord
			ts     int64
			status string
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.ClientIP, &rec.ClientID, &rec.Endpoint, &rec.Method,
			&rec.StatusCode, &rec.ResponseTimeMs, &rec.APIToken, &rec.UserAgent, &status); err != nil {
			return nil, domain.WrapStore("scan log", err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		rec.AuthStatus = domain.AuthOutcome(status)
		out = append(out, rec)
	}
	return out, domain.WrapStore("iterate logs", rows.Err())
}

func (s *SQLiteStore) Count(ctx context.Context, f domain.LogFilter) (int64, error) {
	where, args := logWhere(f)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_logs`+where, args...).Scan(&n); err != nil {
		return 0, domain.WrapStore("count logs", err)
	}
	return n, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (domain.LogStats, error) {
	var (
		total, success, failed int64
		avg                    float64
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN status_code >= 200 AND status_code < 300 THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0),
               COALESCE(AVG(response_time_ms), 0)
        FROM api_logs WHERE ts >= ?
    `, since.UnixNano()).Scan(&total, &success, &failed, &avg)
	if err != nil {
		return domain.LogStats{}, domain.WrapStore("log stats", err)
	}
	return domain.NewLogStats(total, success, failed, avg), nil
}

func logWhere(f domain.LogFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !f.Since.IsZero() {
		conds = append(conds, `ts >= ?`)
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		conds = append(conds, `ts <= ?`)
		args = append(args, f.Until.UnixNano())
	}
	if f.Endpoint != "" {
		conds = append(conds, `endpoint = ?`)
		args = append(args, f.Endpoint)
	}
	if f.ClientID != "" {
		conds = append(conds, `client_id = ?`)
		args = append(args, f.ClientID)
	}
	if len(f.StatusCodes) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.StatusCodes)), ",")
		conds = append(conds, `status_code IN (`+marks+`)`)
		for _, c := range f.StatusCodes {
			args = append(args, c)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

func (s *SQLiteStore) AppendAlert(ctx context.Context, a domain.Alert) error {
	details := []byte("{}")
	if len(a.Details) > 0 {
		b, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("marshal alert details: %w", err)
		}
		details = b
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO alerts(id, client_id, violation_type, severity, ts, details)
        VALUES(?,?,?,?,?,?)
    `, a.ID, a.ClientID, string(a.ViolationType), string(a.Severity), a.Timestamp.UnixNano(), string(details))
	return domain.WrapStore("append alert", err)
}

func (s *SQLiteStore) FindRecentAlert(ctx context.Context, clientID string, vt domain.ViolationType, since time.Time) (*domain.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, client_id, violation_type, severity, ts, details
        FROM alerts
        WHERE client_id = ? AND violation_type = ? AND ts >= ?
        ORDER BY ts DESC LIMIT 1
    `, clientID, string(vt), since.UnixNano())
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapStore("find alert", err)
	}
	return &a, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, client_id, violation_type, severity, ts, details
        FROM alerts ORDER BY ts DESC, rowid DESC LIMIT ?
    `, limit)
	if err != nil {
		return nil, domain.WrapStore("list alerts", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, domain.WrapStore("scan alert", err)
		}
		out = append(out, a)
	}
	return out, domain.WrapStore("iterate alerts", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (domain.Alert, error) {
	var (
		a           domain.Alert
		vt, sev, dt string
		ts          int64
	)
	if err := row.Scan(&a.ID, &a.ClientID, &vt, &sev, &ts, &dt); err != nil {
		return domain.Alert{}, err
	}
	a.ViolationType = domain.ViolationType(vt)
	a.Severity = domain.Severity(sev)
	a.Timestamp = time.Unix(0, ts).UTC()
	if dt != "" && dt != "{}" {
		if err := json.Unmarshal([]byte(dt), &a.Details); err != nil {
			return domain.Alert{}, fmt.Errorf("decode alert details: %w", err)
		}
	}
	return a, nil
}

// Alerts expõe o lado domain.AlertStore do mesmo banco (Append já é do log).
func (s *SQLiteStore) Alerts() domain.AlertStore { return sqliteAlerts{s} }

type sqliteAlerts struct{ s *SQLiteStore }

func (a sqliteAlerts) Append(ctx context.Context, al domain.Alert) error {
	return a.s.AppendAlert(ctx, al)
}

func (a sqliteAlerts) FindRecent(ctx context.Context, clientID string, vt domain.ViolationType, since time.Time) (*domain.Alert, error) {
	return a.s.FindRecentAlert(ctx, clientID, vt, since)
}

func (a sqliteAlerts) List(ctx context.Context, limit int) ([]domain.Alert, error) {
	return a.s.ListAlerts(ctx, limit)
}
