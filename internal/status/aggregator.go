package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/domain"
	"github.com/hamed0406/pulseops/internal/incident"
	"github.com/hamed0406/pulseops/internal/repo"
)

// WindowSize is the number of recent metrics uptime and latency are computed over.
const WindowSize = 100

// Mirror copies the health of a monitor and the check that produced it to an
// external cache.
type Mirror interface {
	Mirror(ctx context.Context, monitorID string, h domain.Health, latest domain.CheckResult) error
}

type Transitioner interface {
	Transition(ctx context.Context, mon domain.Monitor, prev, next domain.Status, latest domain.CheckResult) (incident.Outcome, error)
}

// Update describes what one UpdateStatus call wrote.
type Update struct {
	MonitorID           string           `json:"monitorId"`
	PreviousStatus      domain.Status    `json:"previousStatus"`
	Status              domain.Status    `json:"status"`
	Uptime              float64          `json:"uptime"`
	AverageResponseTime float64          `json:"averageResponseTime"`
	Incident            incident.Outcome `json:"incident"`
}

type Aggregator struct {
	monitors  repo.MonitorStore
	metrics   repo.MetricStore
	incidents Transitioner
	mirror    Mirror
	log       *zap.Logger
	now       func() time.Time
	locks     keyedMutex
}

func NewAggregator(monitors repo.MonitorStore, metrics repo.MetricStore, incidents Transitioner, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		monitors:  monitors,
		metrics:   metrics,
		incidents: incidents,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithMirror enables the status cache. A nil mirror disables it.
func (a *Aggregator) WithMirror(m Mirror) *Aggregator {
	a.mirror = m
	return a
}

// UpdateStatus recomputes the health of monitorID from its recent metrics and
// latest result, persists it and hands the transition to the incident machine.
// Calls for the same monitor are serialized.
func (a *Aggregator) UpdateStatus(ctx context.Context, monitorID string, latest domain.CheckResult) (Update, error) {
	unlock := a.locks.Lock(monitorID)
	defer unlock()

	mon, err := a.monitors.Get(ctx, monitorID)
	if err != nil {
		return Update{}, fmt.Errorf("load monitor: %w", err)
	}
	window, err := a.metrics.Window(ctx, monitorID, WindowSize)
	if err != nil {
		return Update{}, fmt.Errorf("load metrics window: %w", err)
	}

	uptime, avg := Summarize(window, latest)
	h := domain.Health{
		Status:              domain.DeriveStatus(latest),
		Uptime:              uptime,
		AverageResponseTime: avg,
		LastChecked:         a.now(),
	}
	if err := a.monitors.UpdateHealth(ctx, monitorID, h); err != nil {
		return Update{}, fmt.Errorf("update monitor health: %w", err)
	}

	if a.mirror != nil {
		if err := a.mirror.Mirror(ctx, monitorID, h, latest); err != nil {
			a.log.Warn("status_mirror_error", zap.String("monitor_id", monitorID), zap.Error(err))
		}
	}

	up := Update{
		MonitorID:           monitorID,
		PreviousStatus:      mon.Status,
		Status:              h.Status,
		Uptime:              h.Uptime,
		AverageResponseTime: h.AverageResponseTime,
		Incident:            incident.OutcomeNone,
	}
	if a.incidents != nil {
		out, err := a.incidents.Transition(ctx, *mon, mon.Status, h.Status, latest)
		if err != nil {
			return up, fmt.Errorf("incident transition: %w", err)
		}
		up.Incident = out
	}
	return up, nil
}

// Summarize returns uptime percentage and mean response time over window.
// An empty window means 100% uptime and the latest response time.
func Summarize(window []domain.Metric, latest domain.CheckResult) (uptime, avg float64) {
	if len(window) == 0 {
		return 100, float64(latest.ResponseTimeMS)
	}
	var ok int
	var sum int64
	for _, m := range window {
		if m.Success {
			ok++
		}
		sum += m.ResponseTimeMS
	}
	n := float64(len(window))
	return float64(ok) / n * 100, float64(sum) / n
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
