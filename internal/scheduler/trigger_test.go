package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/maintenance"
)

type countingCycler struct {
	n   atomic.Int32
	err error
}

func (c *countingCycler) RunCycle(ctx context.Context) (Report, error) {
	c.n.Add(1)
	return Report{}, c.err
}

type countingMaint struct{ n atomic.Int32 }

func (c *countingMaint) RunAll(ctx context.Context, now time.Time) ([]maintenance.Result, error) {
	c.n.Add(1)
	return nil, nil
}

func TestTrigger_ScheduleValidation(t *testing.T) {
	tr := NewTrigger(zap.NewNop(), &countingCycler{}, &countingMaint{})
	if err := tr.Schedule("", ""); err == nil {
		t.Fatal("expected error for empty schedule")
	}
	if err := tr.Schedule("not a cron spec", ""); err == nil {
		t.Fatal("expected error for bad schedule")
	}
	if err := tr.Schedule("@every 1m", "bogus"); err == nil {
		t.Fatal("expected error for bad maintenance schedule")
	}
}

func TestTrigger_FiresJobs(t *testing.T) {
	c := &countingCycler{err: ErrCycleRunning}
	m := &countingMaint{}
	tr := NewTrigger(zap.NewNop(), c, m)
	if err := tr.Schedule("@every 1s", "@every 1s"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && (c.n.Load() == 0 || m.n.Load() == 0) {
		time.Sleep(50 * time.Millisecond)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	tr.Stop(stopCtx)

	if c.n.Load() == 0 || m.n.Load() == 0 {
		t.Fatalf("jobs did not fire: cycles=%d maintenance=%d", c.n.Load(), m.n.Load())
	}
}

func TestTrigger_RunCycleLogsErrors(t *testing.T) {
	c := &countingCycler{err: errors.New("store down")}
	tr := NewTrigger(nil, c, nil)
	tr.runCycle()
	if c.n.Load() != 1 {
		t.Fatalf("cycle not invoked")
	}
}
