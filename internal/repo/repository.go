package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Ports (interfaces) implemented by the memory and postgres adapters.
type MonitorStore interface {
	Create(ctx context.Context, m *domain.Monitor) error
	Get(ctx context.Context, id string) (*domain.Monitor, error)
	List(ctx context.Context) ([]domain.Monitor, error)
	ListEnabled(ctx context.Context) ([]domain.Monitor, error)
	// Delete removes the monitor together with its metrics and incidents.
	Delete(ctx context.Context, id string) error
	// UpdateHealth writes status, uptime, average response time and last
	// checked time in a single update.
	UpdateHealth(ctx context.Context, id string, h domain.Health) error
}

type MetricStore interface {
	Record(ctx context.Context, m *domain.Metric) error
	// RecordBatch inserts all metrics atomically, skipping IDs that already
	// exist. It returns how many rows were inserted.
	RecordBatch(ctx context.Context, ms []domain.Metric) (int, error)
	// Window returns the n most recent metrics of a monitor, newest first.
	Window(ctx context.Context, monitorID string, n int) ([]domain.Metric, error)
	Since(ctx context.Context, monitorID string, since time.Time, limit int) ([]domain.Metric, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

type IncidentFilter struct {
	MonitorID string
	Status    domain.IncidentStatus
}

type IncidentStore interface {
	Create(ctx context.Context, in *domain.Incident) error
	ListOpen(ctx context.Context, monitorID string) ([]domain.Incident, error)
	// Resolve moves the given incidents to resolved, stamping resolvedAt.
	Resolve(ctx context.Context, ids []string, at time.Time) (int64, error)
	// CloseResolvedBefore closes resolved incidents whose resolvedAt is before cutoff.
	CloseResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	List(ctx context.Context, f IncidentFilter) ([]domain.Incident, error)
}
