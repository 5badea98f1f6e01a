package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hamed0406/pulseops/internal/domain"
	"github.com/hamed0406/pulseops/internal/repo"
)

var _ repo.MetricStore = (*MetricStore)(nil)

type MetricStore struct {
	pool *pgxpool.Pool
}

const insertMetric = `INSERT INTO metrics
   (id, monitor_id, ts, response_time_ms, status_code, success, error_message)
 VALUES
   ($1, $2, $3, $4, $5, $6, $7)
 ON CONFLICT (id) DO NOTHING`

func metricArgs(m *domain.Metric) []any {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	var statusPtr *int
	if m.StatusCode != 0 {
		statusPtr = &m.StatusCode
	}
	return []any{m.ID, m.MonitorID, m.Timestamp, m.ResponseTimeMS, statusPtr, m.Success, m.ErrorMessage}
}

func (s *MetricStore) Record(ctx context.Context, m *domain.Metric) error {
	if _, err := s.pool.Exec(ctx, insertMetric, metricArgs(m)...); err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

func (s *MetricStore) RecordBatch(ctx context.Context, ms []domain.Metric) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range ms {
		batch.Queue(insertMetric, metricArgs(&ms[i])...)
	}
	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range ms {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("batch insert metric: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (s *MetricStore) Window(ctx context.Context, monitorID string, n int) ([]domain.Metric, error) {
	return s.query(ctx,
		`SELECT id, monitor_id, ts, response_time_ms, status_code, success, error_message
		   FROM metrics
		  WHERE monitor_id = $1
		  ORDER BY ts DESC
		  LIMIT $2`, monitorID, n)
}

func (s *MetricStore) Since(ctx context.Context, monitorID string, since time.Time, limit int) ([]domain.Metric, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.query(ctx,
		`SELECT id, monitor_id, ts, response_time_ms, status_code, success, error_message
		   FROM metrics
		  WHERE monitor_id = $1 AND ts >= $2
		  ORDER BY ts DESC
		  LIMIT $3`, monitorID, since, limit)
}

func (s *MetricStore) query(ctx context.Context, sql string, args ...any) ([]domain.Metric, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.Metric
	for rows.Next() {
		var (
			m      domain.Metric
			status *int32
		)
		if err := rows.Scan(&m.ID, &m.MonitorID, &m.Timestamp, &m.ResponseTimeMS, &status, &m.Success, &m.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if status != nil {
			m.StatusCode = int(*status)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MetricStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM metrics WHERE ts < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}
