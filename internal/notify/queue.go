package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/domain"
)

const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 10 * time.Second
)

// Queue decouples incident transitions from delivery. Enqueueing never
// blocks; events are dropped when the buffer is full.
type Queue struct {
	out         Channel
	log         *zap.Logger
	SendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}
	now    func() time.Time
}

func NewQueue(out Channel, size int, log *zap.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		out:         out,
		log:         log,
		SendTimeout: DefaultSendTimeout,
		ch:          make(chan Event, size),
		done:        make(chan struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (q *Queue) IncidentOpened(monitorName, target, details string, severity domain.Severity) {
	q.Enqueue(Event{Kind: KindOpened, MonitorName: monitorName, Target: target, Details: details, Severity: severity, At: q.now()})
}

func (q *Queue) IncidentResolved(monitorName, target, downtime string) {
	q.Enqueue(Event{Kind: KindResolved, MonitorName: monitorName, Target: target, Downtime: downtime, At: q.now()})
}

// Enqueue reports whether the event was accepted.
func (q *Queue) Enqueue(e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.log.Warn("notify_dropped", zap.String("kind", string(e.Kind)), zap.String("reason", "closed"))
		return false
	}
	select {
	case q.ch <- e:
		return true
	default:
		q.log.Warn("notify_dropped",
			zap.String("kind", string(e.Kind)),
			zap.String("monitor", e.MonitorName),
			zap.String("reason", "queue_full"),
		)
		return false
	}
}

// Run delivers queued events until Close is called and the buffer is drained,
// or ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			q.deliver(ctx, e)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, e Event) {
	if q.out == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.SendTimeout)
	defer cancel()
	if err := q.out.Send(sctx, e); err != nil {
		q.log.Warn("notify_send_error",
			zap.String("kind", string(e.Kind)),
			zap.String("monitor", e.MonitorName),
			zap.Error(err),
		)
		return
	}
	q.log.Debug("notify_sent", zap.String("kind", string(e.Kind)), zap.String("monitor", e.MonitorName))
}

// Close stops accepting events. Run drains what is buffered and returns.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Done is closed when Run returns.
func (q *Queue) Done() <-chan struct{} { return q.done }
