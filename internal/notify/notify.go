package notify

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/pulseops/internal/domain"
)

type Kind string

const (
	KindOpened   Kind = "incident_opened"
	KindResolved Kind = "incident_resolved"
)

// Event is one incident notification as delivered to channels.
type Event struct {
	Kind        Kind            `json:"kind"`
	MonitorName string          `json:"monitorName"`
	Target      string          `json:"target"`
	Details     string          `json:"details,omitempty"`
	Severity    domain.Severity `json:"severity,omitempty"`
	Downtime    string          `json:"downtime,omitempty"`
	At          time.Time       `json:"at"`
}

// Channel delivers an event to one external destination.
type Channel interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to every channel and combines their errors.
type Multi []Channel

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs error
	for _, c := range m {
		if c == nil {
			continue
		}
		errs = multierr.Append(errs, c.Send(ctx, e))
	}
	return errs
}
