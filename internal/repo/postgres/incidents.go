package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hamed0406/pulseops/internal/domain"
	"github.com/hamed0406/pulseops/internal/repo"
)

var _ repo.IncidentStore = (*IncidentStore)(nil)

type IncidentStore struct {
	pool *pgxpool.Pool
}

func (s *IncidentStore) Create(ctx context.Context, in *domain.Incident) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if in.StartedAt.IsZero() {
		in.StartedAt = now
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents
		   (id, monitor_id, title, description, severity, status, started_at, resolved_at, created_at, updated_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		in.ID, in.MonitorID, in.Title, in.Description, string(in.Severity), string(in.Status),
		in.StartedAt, in.ResolvedAt, in.CreatedAt, in.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (s *IncidentStore) ListOpen(ctx context.Context, monitorID string) ([]domain.Incident, error) {
	return s.List(ctx, repo.IncidentFilter{MonitorID: monitorID, Status: domain.IncidentOpen})
}

func (s *IncidentStore) Resolve(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents
		    SET status = 'resolved', resolved_at = $2, updated_at = $2
		  WHERE id = ANY($1) AND status = 'open'`,
		ids, at,
	)
	if err != nil {
		return 0, fmt.Errorf("resolve incidents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *IncidentStore) CloseResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents
		    SET status = 'closed', updated_at = now()
		  WHERE status = 'resolved' AND resolved_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("close incidents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *IncidentStore) List(ctx context.Context, f repo.IncidentFilter) ([]domain.Incident, error) {
	sql := `SELECT id, monitor_id, title, description, severity, status,
	               started_at, resolved_at, created_at, updated_at
	          FROM incidents
	         WHERE TRUE`
	var args []any
	if f.MonitorID != "" {
		args = append(args, f.MonitorID)
		sql += ` AND monitor_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		sql += ` AND status = $` + strconv.Itoa(len(args))
	}
	sql += ` ORDER BY started_at DESC`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Incident, 0)
	for rows.Next() {
		var (
			in               domain.Incident
			severity, status string
		)
		if err := rows.Scan(&in.ID, &in.MonitorID, &in.Title, &in.Description, &severity, &status,
			&in.StartedAt, &in.ResolvedAt, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		in.Severity = domain.Severity(severity)
		in.Status = domain.IncidentStatus(status)
		out = append(out, in)
	}
	return out, rows.Err()
}
