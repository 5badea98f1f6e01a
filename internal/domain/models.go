package domain

import "time"

type MonitorType string

const (
	TypeHTTP  MonitorType = "http"
	TypeHTTPS MonitorType = "https"
	TypePing  MonitorType = "ping"
	TypeTCP   MonitorType = "tcp"
	TypeDNS   MonitorType = "dns"
)

// Valid reports whether t is one of the supported protocol types.
func (t MonitorType) Valid() bool {
	switch t {
	case TypeHTTP, TypeHTTPS, TypePing, TypeTCP, TypeDNS:
		return true
	}
	return false
}

type Status string

const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusDegraded    Status = "degraded"
	StatusMaintenance Status = "maintenance"
)

// Unhealthy is true only for offline. Degraded and maintenance count as healthy
// when deciding incident transitions.
func (s Status) Unhealthy() bool { return s == StatusOffline }

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentClosed        IncidentStatus = "closed"
)

// Defaults applied to monitors created without explicit check parameters.
const (
	DefaultInterval       = 5  // minutes
	DefaultTimeout        = 30 // seconds
	DefaultExpectedStatus = 200
)

type Monitor struct {
	ID                  string      `json:"id"`
	UserID              string      `json:"userId,omitempty"`
	Name                string      `json:"name"`
	URL                 string      `json:"url"`
	Type                MonitorType `json:"type"`
	Interval            int         `json:"interval"` // minutes
	Timeout             int         `json:"timeout"`  // seconds
	ExpectedStatusCode  int         `json:"expectedStatusCode"`
	Enabled             bool        `json:"enabled"`
	Status              Status      `json:"status"`
	Uptime              float64     `json:"uptime"`
	AverageResponseTime float64     `json:"averageResponseTime"`
	LastChecked         *time.Time  `json:"lastChecked,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// ApplyDefaults fills zero-valued check parameters and the initial status.
func (m *Monitor) ApplyDefaults() {
	if m.Type == "" {
		m.Type = TypeHTTPS
	}
	if m.Interval <= 0 {
		m.Interval = DefaultInterval
	}
	if m.Timeout <= 0 {
		m.Timeout = DefaultTimeout
	}
	if m.ExpectedStatusCode == 0 {
		m.ExpectedStatusCode = DefaultExpectedStatus
	}
	if m.Status == "" {
		m.Status = StatusOnline
	}
	if m.Uptime == 0 && m.LastChecked == nil {
		m.Uptime = 100
	}
}

// Due reports whether at least Interval minutes have passed since the last
// check. A monitor that was never checked is always due.
func (m Monitor) Due(now time.Time) bool {
	last := time.Unix(0, 0).UTC()
	if m.LastChecked != nil {
		last = *m.LastChecked
	}
	return now.Sub(last) >= time.Duration(m.Interval)*time.Minute
}

type Metric struct {
	ID             string    `json:"id"`
	MonitorID      string    `json:"monitorId"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMS int64     `json:"responseTime"`
	StatusCode     int       `json:"statusCode,omitempty"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}

type Incident struct {
	ID          string         `json:"id"`
	MonitorID   string         `json:"monitorId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Status      IncidentStatus `json:"status"`
	StartedAt   time.Time      `json:"startedAt"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Health is the field set written by the status aggregator after each check.
type Health struct {
	Status              Status
	Uptime              float64
	AverageResponseTime float64
	LastChecked         time.Time
}
