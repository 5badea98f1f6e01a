package incident

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/domain"
	"github.com/hamed0406/pulseops/internal/repo"
)

// Notifier receives incident lifecycle events. Implementations must not block;
// delivery failures are their own concern.
type Notifier interface {
	IncidentOpened(monitorName, target, details string, severity domain.Severity)
	IncidentResolved(monitorName, target, downtime string)
}

type Outcome string

const (
	OutcomeNone     Outcome = "none"
	OutcomeOpened   Outcome = "opened"
	OutcomeResolved Outcome = "resolved"
)

// AutoCloseAfter is how long a resolved incident stays visible before it is closed.
const AutoCloseAfter = 7 * 24 * time.Hour

// Machine turns monitor status transitions into incident records.
type Machine struct {
	store    repo.IncidentStore
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func New(store repo.IncidentStore, notifier Notifier, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Transition reacts to prev -> next for one monitor. Callers serialize calls
// per monitor.
func (m *Machine) Transition(ctx context.Context, mon domain.Monitor, prev, next domain.Status, latest domain.CheckResult) (Outcome, error) {
	switch {
	case !prev.Unhealthy() && next.Unhealthy():
		return m.open(ctx, mon, latest)
	case prev.Unhealthy() && !next.Unhealthy():
		return m.resolve(ctx, mon)
	}
	return OutcomeNone, nil
}

func (m *Machine) open(ctx context.Context, mon domain.Monitor, latest domain.CheckResult) (Outcome, error) {
	open, err := m.store.ListOpen(ctx, mon.ID)
	if err != nil {
		return OutcomeNone, fmt.Errorf("list open incidents: %w", err)
	}
	if len(open) > 0 {
		return OutcomeNone, nil
	}

	details := latest.ErrorMessage
	if details == "" {
		details = "Monitor check failed"
	}
	now := m.now()
	in := &domain.Incident{
		MonitorID:   mon.ID,
		Title:       mon.Name + " is down",
		Description: details,
		Severity:    domain.SeverityHigh,
		Status:      domain.IncidentOpen,
		StartedAt:   now,
	}
	if err := m.store.Create(ctx, in); err != nil {
		return OutcomeNone, fmt.Errorf("create incident: %w", err)
	}
	m.log.Info("incident_opened",
		zap.String("monitor_id", mon.ID),
		zap.String("incident_id", in.ID),
		zap.String("details", details),
	)
	if m.notifier != nil {
		m.notifier.IncidentOpened(mon.Name, mon.URL, details, in.Severity)
	}
	return OutcomeOpened, nil
}

func (m *Machine) resolve(ctx context.Context, mon domain.Monitor) (Outcome, error) {
	open, err := m.store.ListOpen(ctx, mon.ID)
	if err != nil {
		return OutcomeNone, fmt.Errorf("list open incidents: %w", err)
	}
	if len(open) == 0 {
		return OutcomeNone, nil
	}

	now := m.now()
	ids := make([]string, 0, len(open))
	earliest := open[0].StartedAt
	for _, in := range open {
		ids = append(ids, in.ID)
		if in.StartedAt.Before(earliest) {
			earliest = in.StartedAt
		}
	}
	if _, err := m.store.Resolve(ctx, ids, now); err != nil {
		return OutcomeNone, fmt.Errorf("resolve incidents: %w", err)
	}

	downtime := FormatDuration(now.Sub(earliest))
	m.log.Info("incident_resolved",
		zap.String("monitor_id", mon.ID),
		zap.Int("incidents", len(ids)),
		zap.String("downtime", downtime),
	)
	if m.notifier != nil {
		m.notifier.IncidentResolved(mon.Name, mon.URL, downtime)
	}
	return OutcomeResolved, nil
}

// AutoClose closes resolved incidents older than after. Running it twice
// closes nothing the second time.
func (m *Machine) AutoClose(ctx context.Context, now time.Time, after time.Duration) (int64, error) {
	n, err := m.store.CloseResolvedBefore(ctx, now.Add(-after))
	if err != nil {
		return 0, fmt.Errorf("auto-close incidents: %w", err)
	}
	return n, nil
}

// FormatDuration renders a downtime like "2d 3h 4m", "1h 2m", "5m 30s" or "45s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
