package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/repo"
)

const (
	DefaultMetricRetention = 30 * 24 * time.Hour
	DefaultIncidentClose   = 7 * 24 * time.Hour
)

// Task is one housekeeping job. Run returns how many rows it touched.
type Task interface {
	Name() string
	Run(ctx context.Context, now time.Time) (int64, error)
}

// MetricPruner deletes metrics older than Retention.
type MetricPruner struct {
	Metrics   repo.MetricStore
	Retention time.Duration
}

func (p MetricPruner) Name() string { return "metric_prune" }

func (p MetricPruner) Run(ctx context.Context, now time.Time) (int64, error) {
	retention := p.Retention
	if retention <= 0 {
		retention = DefaultMetricRetention
	}
	return p.Metrics.Prune(ctx, now.Add(-retention))
}

// AutoCloser is satisfied by *incident.Machine.
type AutoCloser interface {
	AutoClose(ctx context.Context, now time.Time, after time.Duration) (int64, error)
}

// IncidentCloser closes incidents resolved more than After ago.
type IncidentCloser struct {
	Incidents AutoCloser
	After     time.Duration
}

func (c IncidentCloser) Name() string { return "incident_autoclose" }

func (c IncidentCloser) Run(ctx context.Context, now time.Time) (int64, error) {
	after := c.After
	if after <= 0 {
		after = DefaultIncidentClose
	}
	return c.Incidents.AutoClose(ctx, now, after)
}

type Result struct {
	Task     string `json:"task"`
	Affected int64  `json:"affected"`
	Error    string `json:"error,omitempty"`
}

type Runner struct {
	tasks []Task
	log   *zap.Logger
}

func NewRunner(log *zap.Logger, tasks ...Task) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{tasks: tasks, log: log}
}

// RunAll runs every task even if earlier ones fail. The returned error
// combines all task failures.
func (r *Runner) RunAll(ctx context.Context, now time.Time) ([]Result, error) {
	out := make([]Result, 0, len(r.tasks))
	var errs error
	for _, t := range r.tasks {
		n, err := runTask(ctx, t, now)
		res := Result{Task: t.Name(), Affected: n}
		if err != nil {
			res.Error = err.Error()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			r.log.Error("maintenance_task_error", zap.String("task", t.Name()), zap.Error(err))
		} else {
			r.log.Info("maintenance_task_done", zap.String("task", t.Name()), zap.Int64("affected", n))
		}
		out = append(out, res)
	}
	return out, errs
}

func runTask(ctx context.Context, t Task, now time.Time) (n int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Run(ctx, now)
}
