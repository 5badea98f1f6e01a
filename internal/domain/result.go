package domain

import "time"

// DegradedThreshold is the response time above which a successful check is
// reported as degraded.
const DegradedThreshold = 5000 * time.Millisecond

// CheckResult is the outcome of one probe. StatusCode is 0 when no HTTP
// response was received.
type CheckResult struct {
	Success        bool   `json:"success"`
	ResponseTimeMS int64  `json:"responseTime"`
	StatusCode     int    `json:"statusCode,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

// DeriveStatus maps the latest result to a point-in-time status.
func DeriveStatus(r CheckResult) Status {
	switch {
	case !r.Success:
		return StatusOffline
	case r.ResponseTimeMS > DegradedThreshold.Milliseconds():
		return StatusDegraded
	default:
		return StatusOnline
	}
}

// MetricFrom builds the metric row recorded for a result.
func MetricFrom(monitorID string, r CheckResult, at time.Time) Metric {
	return Metric{
		MonitorID:      monitorID,
		Timestamp:      at,
		ResponseTimeMS: r.ResponseTimeMS,
		StatusCode:     r.StatusCode,
		Success:        r.Success,
		ErrorMessage:   r.ErrorMessage,
	}
}
