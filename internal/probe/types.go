package probe

import (
	"context"
	"strconv"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

const userAgent = "PulseOps/1.0"

// Target is what a strategy probes: the monitor's address plus its success
// criterion and deadline.
type Target struct {
	Address        string
	ExpectedStatus int
	Timeout        time.Duration
}

// Checker is implemented by every protocol strategy (HTTP, ping, TCP, DNS).
// Implementations report failures inside the result and never return errors.
type Checker interface {
	Check(ctx context.Context, t Target) domain.CheckResult
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func failed(start time.Time, msg string) domain.CheckResult {
	return domain.CheckResult{Success: false, ResponseTimeMS: elapsedMS(start), ErrorMessage: msg}
}

// seconds renders a timeout the way it was configured: "5s", "0.25s".
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

func timedOut(start time.Time, d time.Duration) domain.CheckResult {
	return failed(start, "Request timed out after "+seconds(d))
}
