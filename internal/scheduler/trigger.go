package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cycler is satisfied by *Dispatcher.
type Cycler interface {
	RunCycle(ctx context.Context) (Report, error)
}

// Trigger fires check cycles, and optionally maintenance, on cron schedules
// inside the process.
type Trigger struct {
	log   *zap.Logger
	cron  *cron.Cron
	cycle Cycler
	maint Maintainer
	ctx   context.Context
}

func NewTrigger(log *zap.Logger, cycle Cycler, maint Maintainer) *Trigger {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{s: log.Sugar()}
	return &Trigger{
		log:   log,
		cron:  cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		cycle: cycle,
		maint: maint,
		ctx:   context.Background(),
	}
}

// Schedule registers the cycle spec (e.g. "@every 1m") and, when maintSpec is
// not empty, a separate maintenance spec.
func (t *Trigger) Schedule(cycleSpec, maintSpec string) error {
	if cycleSpec == "" {
		return errors.New("empty cycle schedule")
	}
	if _, err := t.cron.AddFunc(cycleSpec, t.runCycle); err != nil {
		return fmt.Errorf("cycle schedule %q: %w", cycleSpec, err)
	}
	if maintSpec != "" && t.maint != nil {
		if _, err := t.cron.AddFunc(maintSpec, t.runMaintenance); err != nil {
			return fmt.Errorf("maintenance schedule %q: %w", maintSpec, err)
		}
	}
	return nil
}

// Start begins firing jobs; ctx is passed to every run.
func (t *Trigger) Start(ctx context.Context) {
	t.ctx = ctx
	t.cron.Start()
	t.log.Info("trigger_started", zap.Int("jobs", len(t.cron.Entries())))
}

// Stop prevents new runs and waits for running ones up to the ctx deadline.
func (t *Trigger) Stop(ctx context.Context) {
	select {
	case <-t.cron.Stop().Done():
	case <-ctx.Done():
		t.log.Warn("trigger_stop_timeout")
	}
}

func (t *Trigger) runCycle() {
	rep, err := t.cycle.RunCycle(t.ctx)
	switch {
	case errors.Is(err, ErrCycleRunning):
		// another caller (HTTP cron endpoint) holds the cycle
	case err != nil:
		t.log.Error("trigger_cycle_error", zap.Error(err))
	default:
		t.log.Debug("trigger_cycle_done", zap.Int("checked", rep.Checked))
	}
}

func (t *Trigger) runMaintenance() {
	if _, err := t.maint.RunAll(t.ctx, time.Now().UTC()); err != nil {
		t.log.Error("trigger_maintenance_error", zap.Error(err))
	}
}

type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
