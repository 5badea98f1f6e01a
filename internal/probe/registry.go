package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

// Registry maps each protocol type to the strategy that probes it.
type Registry struct {
	checkers map[domain.MonitorType]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[domain.MonitorType]Checker)}
}

// DefaultRegistry wires the built-in strategies. http and https share one checker.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	httpc := NewHTTPChecker()
	r.Register(domain.TypeHTTP, httpc)
	r.Register(domain.TypeHTTPS, httpc)
	r.Register(domain.TypePing, NewPingChecker())
	r.Register(domain.TypeTCP, NewTCPChecker())
	r.Register(domain.TypeDNS, NewDNSChecker())
	return r
}

func (r *Registry) Register(t domain.MonitorType, c Checker) {
	r.checkers[t] = c
}

// WithRetry wraps every registered strategy in a RetryChecker. attempts <= 1
// leaves the registry unchanged.
func (r *Registry) WithRetry(attempts int, backoff time.Duration) *Registry {
	if attempts <= 1 {
		return r
	}
	for t, c := range r.checkers {
		r.checkers[t] = &RetryChecker{Inner: c, Attempts: attempts, Backoff: backoff}
	}
	return r
}

// PerformHealthCheck runs the strategy registered for typ. It always returns a
// result: unknown types and panics inside a strategy become failures.
func (r *Registry) PerformHealthCheck(ctx context.Context, target string, typ domain.MonitorType, expectedStatus, timeoutSeconds int) (res domain.CheckResult) {
	if expectedStatus == 0 {
		expectedStatus = domain.DefaultExpectedStatus
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = domain.DefaultTimeout
	}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = failed(start, fmt.Sprintf("probe panic: %v", p))
		}
	}()

	c, ok := r.checkers[typ]
	if !ok {
		return failed(start, fmt.Sprintf("Unsupported monitor type: %s", typ))
	}
	return c.Check(ctx, Target{
		Address:        target,
		ExpectedStatus: expectedStatus,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
	})
}

// Check probes a monitor with its own parameters.
func (r *Registry) Check(ctx context.Context, m domain.Monitor) domain.CheckResult {
	return r.PerformHealthCheck(ctx, m.URL, m.Type, m.ExpectedStatusCode, m.Timeout)
}
