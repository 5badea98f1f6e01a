package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/domain"
	"github.com/hamed0406/pulseops/internal/incident"
	"github.com/hamed0406/pulseops/internal/maintenance"
	"github.com/hamed0406/pulseops/internal/repo"
	"github.com/hamed0406/pulseops/internal/status"
)

const DefaultBatchSize = 10

var (
	ErrCycleRunning    = errors.New("check cycle already running")
	ErrMonitorDisabled = errors.New("monitor is disabled")
	ErrCheckCancelled  = errors.New("check cancelled")
)

// Prober is satisfied by *probe.Registry.
type Prober interface {
	Check(ctx context.Context, m domain.Monitor) domain.CheckResult
}

// StatusUpdater is satisfied by *status.Aggregator.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, monitorID string, latest domain.CheckResult) (status.Update, error)
}

// Maintainer is satisfied by *maintenance.Runner.
type Maintainer interface {
	RunAll(ctx context.Context, now time.Time) ([]maintenance.Result, error)
}

type Config struct {
	BatchSize int
	// SkipMaintenance leaves housekeeping to a separate trigger.
	SkipMaintenance bool
}

// MonitorResult is one per-monitor entry of a cycle report.
type MonitorResult struct {
	MonitorID      string           `json:"monitorId"`
	Name           string           `json:"name"`
	Success        bool             `json:"success"`
	Status         domain.Status    `json:"status,omitempty"`
	ResponseTimeMS int64            `json:"responseTime"`
	StatusCode     int              `json:"statusCode,omitempty"`
	ErrorMessage   string           `json:"errorMessage,omitempty"`
	Error          string           `json:"error,omitempty"`
	Incident       incident.Outcome `json:"incident,omitempty"`

	err error
}

type Report struct {
	Timestamp     time.Time            `json:"timestamp"`
	Skipped       bool                 `json:"skipped"`
	Checked       int                  `json:"checked"`
	Succeeded     int                  `json:"succeeded"`
	Failed        int                  `json:"failed"`
	Results       []MonitorResult      `json:"results"`
	Maintenance   []maintenance.Result `json:"maintenance,omitempty"`
	ExecutionTime time.Duration        `json:"executionTime"`
}

// Affected returns the count a maintenance task reported, 0 when it did not run.
func (r Report) Affected(task string) int64 {
	for _, m := range r.Maintenance {
		if m.Task == task {
			return m.Affected
		}
	}
	return 0
}

type Dispatcher struct {
	log      *zap.Logger
	monitors repo.MonitorStore
	metrics  repo.MetricStore
	prober   Prober
	status   StatusUpdater
	maint    Maintainer
	cfg      Config
	running  sync.Mutex
	now      func() time.Time
}

func NewDispatcher(
	log *zap.Logger,
	monitors repo.MonitorStore,
	metrics repo.MetricStore,
	prober Prober,
	statusUpdater StatusUpdater,
	maint Maintainer,
	cfg Config,
) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:      log,
		monitors: monitors,
		metrics:  metrics,
		prober:   prober,
		status:   statusUpdater,
		maint:    maint,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunCycle checks every enabled monitor that is due, then runs maintenance.
// Only one cycle runs at a time; an overlapping call returns a skipped report
// and ErrCycleRunning.
func (d *Dispatcher) RunCycle(ctx context.Context) (Report, error) {
	now := d.now()
	if !d.running.TryLock() {
		d.log.Warn("cycle_skipped", zap.String("reason", "already_running"))
		return Report{Timestamp: now, Skipped: true, Results: []MonitorResult{}}, ErrCycleRunning
	}
	defer d.running.Unlock()

	start := time.Now()
	enabled, err := d.monitors.ListEnabled(ctx)
	if err != nil {
		return Report{Timestamp: now}, fmt.Errorf("list enabled monitors: %w", err)
	}
	due := make([]domain.Monitor, 0, len(enabled))
	for _, m := range enabled {
		if m.Due(now) {
			due = append(due, m)
		}
	}

	rep := d.dispatch(ctx, due)
	rep.Timestamp = now

	if d.maint != nil && !d.cfg.SkipMaintenance {
		res, err := d.maint.RunAll(ctx, now)
		rep.Maintenance = res
		if err != nil {
			d.log.Warn("cycle_maintenance_error", zap.Error(err))
		}
	}

	rep.ExecutionTime = time.Since(start)
	d.log.Info("cycle_completed",
		zap.Int("enabled", len(enabled)),
		zap.Int("checked", rep.Checked),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
		zap.Duration("elapsed", rep.ExecutionTime),
	)
	return rep, nil
}

// CheckAll checks every enabled monitor regardless of when it was last checked.
func (d *Dispatcher) CheckAll(ctx context.Context) (Report, error) {
	start := time.Now()
	enabled, err := d.monitors.ListEnabled(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list enabled monitors: %w", err)
	}
	rep := d.dispatch(ctx, enabled)
	rep.Timestamp = d.now()
	rep.ExecutionTime = time.Since(start)
	return rep, nil
}

// CheckNow checks one monitor immediately.
func (d *Dispatcher) CheckNow(ctx context.Context, monitorID string) (MonitorResult, error) {
	m, err := d.monitors.Get(ctx, monitorID)
	if err != nil {
		return MonitorResult{}, err
	}
	if !m.Enabled {
		return MonitorResult{}, ErrMonitorDisabled
	}
	res := d.runOne(ctx, *m)
	return res, res.err
}

// dispatch runs monitors in sequential batches; monitors inside a batch run
// concurrently and the next batch starts after the whole batch finished.
func (d *Dispatcher) dispatch(ctx context.Context, monitors []domain.Monitor) Report {
	rep := Report{Results: make([]MonitorResult, 0, len(monitors))}
	size := d.cfg.BatchSize

	for i := 0; i < len(monitors); i += size {
		end := min(i+size, len(monitors))
		batch := monitors[i:end]
		out := make([]MonitorResult, len(batch))

		var wg sync.WaitGroup
		for j, m := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out[j] = d.runOne(ctx, m)
			}()
		}
		wg.Wait()
		rep.Results = append(rep.Results, out...)
	}

	for _, r := range rep.Results {
		if r.Success {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
	}
	rep.Checked = len(rep.Results)
	return rep
}

// runOne executes check -> record -> status for one monitor. Any error or
// panic is confined to this monitor's entry.
func (d *Dispatcher) runOne(ctx context.Context, m domain.Monitor) (res MonitorResult) {
	res = MonitorResult{MonitorID: m.ID, Name: m.Name}
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", p)
			res.err = errors.New(res.Error)
			d.log.Error("check_pipeline_panic", zap.String("monitor_id", m.ID), zap.Any("panic", p))
		}
	}()

	result := d.prober.Check(ctx, m)
	// a cancelled caller says nothing about the target
	if err := ctx.Err(); err != nil {
		return d.pipelineError(res, m, "check", fmt.Errorf("%w: %w", ErrCheckCancelled, err))
	}
	res.ResponseTimeMS = result.ResponseTimeMS
	res.StatusCode = result.StatusCode
	res.ErrorMessage = result.ErrorMessage

	metric := domain.MetricFrom(m.ID, result, d.now())
	if err := d.metrics.Record(ctx, &metric); err != nil {
		return d.pipelineError(res, m, "record_metric", err)
	}

	up, err := d.status.UpdateStatus(ctx, m.ID, result)
	res.Status = up.Status
	res.Incident = up.Incident
	if err != nil {
		return d.pipelineError(res, m, "update_status", err)
	}

	res.Success = result.Success
	d.log.Debug("monitor_checked",
		zap.String("monitor_id", m.ID),
		zap.String("url", m.URL),
		zap.String("type", string(m.Type)),
		zap.Bool("success", result.Success),
		zap.Int64("response_ms", result.ResponseTimeMS),
		zap.Int("status_code", result.StatusCode),
		zap.String("status", string(up.Status)),
	)
	return res
}

func (d *Dispatcher) pipelineError(res MonitorResult, m domain.Monitor, step string, err error) MonitorResult {
	d.log.Warn("check_pipeline_error",
		zap.String("monitor_id", m.ID),
		zap.String("step", step),
		zap.Error(err),
	)
	res.Success = false
	res.Error = err.Error()
	res.err = err
	return res
}
