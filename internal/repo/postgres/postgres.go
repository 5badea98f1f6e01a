package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/domain"
	"github.com/hamed0406/pulseops/internal/repo"
)

var _ repo.MonitorStore = (*MonitorStore)(nil)

// Schema is applied by Migrate. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS monitors (
  id                    TEXT PRIMARY KEY,
  user_id               TEXT NOT NULL DEFAULT '',
  name                  TEXT NOT NULL,
  url                   TEXT NOT NULL,
  type                  TEXT NOT NULL DEFAULT 'https',
  interval_minutes      INTEGER NOT NULL DEFAULT 5,
  timeout_seconds       INTEGER NOT NULL DEFAULT 30,
  expected_status_code  INTEGER NOT NULL DEFAULT 200,
  enabled               BOOLEAN NOT NULL DEFAULT TRUE,
  status                TEXT NOT NULL DEFAULT 'online',
  uptime                DOUBLE PRECISION NOT NULL DEFAULT 100,
  average_response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
  last_checked          TIMESTAMPTZ NULL,
  created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS metrics (
  id               TEXT PRIMARY KEY,
  monitor_id       TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
  ts               TIMESTAMPTZ NOT NULL,
  response_time_ms BIGINT NOT NULL,
  status_code      INTEGER NULL,
  success          BOOLEAN NOT NULL,
  error_message    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS incidents (
  id          TEXT PRIMARY KEY,
  monitor_id  TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
  title       TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  severity    TEXT NOT NULL,
  status      TEXT NOT NULL,
  started_at  TIMESTAMPTZ NOT NULL,
  resolved_at TIMESTAMPTZ NULL,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_metrics_monitor_ts  ON metrics (monitor_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_ts          ON metrics (ts);
CREATE INDEX IF NOT EXISTS idx_incidents_monitor   ON incidents (monitor_id, status);
CREATE INDEX IF NOT EXISTS idx_incidents_resolved  ON incidents (status, resolved_at);
`

// Store owns the connection pool shared by the three table stores.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("postgres_schema_ready")
	return nil
}

func (s *Store) Monitors() *MonitorStore   { return &MonitorStore{pool: s.pool} }
func (s *Store) Metrics() *MetricStore     { return &MetricStore{pool: s.pool} }
func (s *Store) Incidents() *IncidentStore { return &IncidentStore{pool: s.pool} }

// ---- MonitorStore ----

type MonitorStore struct {
	pool *pgxpool.Pool
}

const monitorColumns = `id, user_id, name, url, type, interval_minutes, timeout_seconds,
       expected_status_code, enabled, status, uptime, average_response_time,
       last_checked, created_at, updated_at`

func (s *MonitorStore) Create(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors (`+monitorColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.UserID, m.Name, m.URL, string(m.Type), m.Interval, m.Timeout,
		m.ExpectedStatusCode, m.Enabled, string(m.Status), m.Uptime, m.AverageResponseTime,
		m.LastChecked, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

func (s *MonitorStore) Get(ctx context.Context, id string) (*domain.Monitor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return &m, nil
}

func (s *MonitorStore) List(ctx context.Context) ([]domain.Monitor, error) {
	return s.query(ctx, `SELECT `+monitorColumns+` FROM monitors ORDER BY created_at DESC, id DESC`)
}

func (s *MonitorStore) ListEnabled(ctx context.Context) ([]domain.Monitor, error) {
	return s.query(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE enabled ORDER BY created_at DESC, id DESC`)
}

func (s *MonitorStore) query(ctx context.Context, sql string) ([]domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMonitor(row pgx.Row) (domain.Monitor, error) {
	var (
		m           domain.Monitor
		typ, status string
	)
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.URL, &typ, &m.Interval, &m.Timeout,
		&m.ExpectedStatusCode, &m.Enabled, &status, &m.Uptime, &m.AverageResponseTime,
		&m.LastChecked, &m.CreatedAt, &m.UpdatedAt)
	m.Type = domain.MonitorType(typ)
	m.Status = domain.Status(status)
	return m, err
}

func (s *MonitorStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *MonitorStore) UpdateHealth(ctx context.Context, id string, h domain.Health) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors
		    SET status = $2, uptime = $3, average_response_time = $4,
		        last_checked = $5, updated_at = now()
		  WHERE id = $1`,
		id, string(h.Status), h.Uptime, h.AverageResponseTime, h.LastChecked,
	)
	if err != nil {
		return fmt.Errorf("update monitor health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
