package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/domain"
	"github.com/hamed0406/pulseops/internal/maintenance"
	"github.com/hamed0406/pulseops/internal/probe"
	"github.com/hamed0406/pulseops/internal/repo"
	"github.com/hamed0406/pulseops/internal/scheduler"
)

// ---- cron ----

type cronTasks struct {
	MonitorsChecked int   `json:"monitorsChecked"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	MetricsDeleted  int64 `json:"metricsDeleted"`
	IncidentsClosed int64 `json:"incidentsClosed"`
}

type cronResponse struct {
	Success       bool      `json:"success"`
	Timestamp     time.Time `json:"timestamp"`
	Skipped       bool      `json:"skipped"`
	Tasks         cronTasks `json:"tasks"`
	ExecutionTime string    `json:"executionTime"`
	Details       struct {
		MonitorResults []scheduler.MonitorResult `json:"monitorResults"`
		Maintenance    []maintenance.Result      `json:"maintenance,omitempty"`
	} `json:"details"`
}

func (s *Server) handleCronMaster(w http.ResponseWriter, r *http.Request) {
	// a disconnecting caller does not cut the cycle short
	rep, err := s.Dispatcher.RunCycle(context.WithoutCancel(r.Context()))
	if err != nil && !errors.Is(err, scheduler.ErrCycleRunning) {
		s.Logger.Error("cron_master_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to execute cron tasks")
		return
	}

	resp := cronResponse{
		Success:   true,
		Timestamp: rep.Timestamp,
		Skipped:   rep.Skipped,
		Tasks: cronTasks{
			MonitorsChecked: rep.Checked,
			Succeeded:       rep.Succeeded,
			Failed:          rep.Failed,
			MetricsDeleted:  rep.Affected(maintenance.MetricPruner{}.Name()),
			IncidentsClosed: rep.Affected(maintenance.IncidentCloser{}.Name()),
		},
		ExecutionTime: strconv.FormatInt(rep.ExecutionTime.Milliseconds(), 10) + "ms",
	}
	resp.Details.MonitorResults = rep.Results
	if resp.Details.MonitorResults == nil {
		resp.Details.MonitorResults = []scheduler.MonitorResult{}
	}
	resp.Details.Maintenance = rep.Maintenance
	writeJSON(w, http.StatusOK, resp)
}

// ---- check now ----

type checkNowPayload struct {
	MonitorID string `json:"monitorId"`
}

type checkedMonitor struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Status       domain.Status `json:"status"`
	ResponseTime int64         `json:"responseTime"`
	StatusCode   int           `json:"statusCode,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	var p checkNowPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	if p.MonitorID != "" {
		res, err := s.Dispatcher.CheckNow(context.WithoutCancel(r.Context()), p.MonitorID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			writeError(w, http.StatusNotFound, "Monitor not found")
			return
		case errors.Is(err, scheduler.ErrMonitorDisabled):
			writeError(w, http.StatusBadRequest, "Monitor is disabled")
			return
		case err != nil:
			s.Logger.Error("check_now_error", zap.String("monitor_id", p.MonitorID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to check monitor"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"monitor": checkedMonitor{
				ID:           res.MonitorID,
				Name:         res.Name,
				Status:       res.Status,
				ResponseTime: res.ResponseTimeMS,
				StatusCode:   res.StatusCode,
				ErrorMessage: res.ErrorMessage,
			},
		})
		return
	}

	rep, err := s.Dispatcher.CheckAll(context.WithoutCancel(r.Context()))
	if err != nil {
		s.Logger.Error("check_all_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to check monitors")
		return
	}
	msg := "Checked " + strconv.Itoa(rep.Checked) + " monitor(s)"
	if rep.Checked == 0 {
		msg = "No monitors to check"
	}
	results := rep.Results
	if results == nil {
		results = []scheduler.MonitorResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   msg,
		"succeeded": rep.Succeeded,
		"failed":    rep.Failed,
		"results":   results,
	})
}

// ---- monitors ----

type monitorPayload struct {
	Name               string `json:"name"`
	URL                string `json:"url"`
	Type               string `json:"type"`
	Interval           int    `json:"interval"`
	Timeout            int    `json:"timeout"`
	ExpectedStatusCode int    `json:"expectedStatusCode"`
	Enabled            *bool  `json:"enabled"`
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Monitors.List(r.Context())
	if err != nil {
		s.Logger.Error("list_monitors_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch monitors")
		return
	}
	if ms == nil {
		ms = []domain.Monitor{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var p monitorPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || strings.TrimSpace(p.URL) == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	m := domain.Monitor{
		Name:               strings.TrimSpace(p.Name),
		URL:                strings.TrimSpace(p.URL),
		Type:               domain.MonitorType(strings.ToLower(p.Type)),
		Interval:           p.Interval,
		Timeout:            p.Timeout,
		ExpectedStatusCode: p.ExpectedStatusCode,
		Enabled:            p.Enabled == nil || *p.Enabled,
	}
	m.ApplyDefaults()
	if !m.Type.Valid() {
		writeError(w, http.StatusBadRequest, "unsupported monitor type")
		return
	}
	if m.Type == domain.TypeHTTP || m.Type == domain.TypeHTTPS {
		if !isValidHTTPURL(m.URL) {
			writeError(w, http.StatusBadRequest, "invalid url")
			return
		}
		m.URL = normalizeHTTPURL(m.URL)
	}
	if m.Name == "" {
		m.Name = m.URL
	}

	existing, err := s.Monitors.List(r.Context())
	if err != nil {
		s.Logger.Error("list_monitors_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}
	for _, e := range existing {
		if e.Type == m.Type && e.URL == m.URL {
			writeError(w, http.StatusConflict, "monitor already exists")
			return
		}
	}

	if err := s.Monitors.Create(r.Context(), &m); err != nil {
		s.Logger.Error("create_monitor_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	resp := map[string]any{"monitor": m}
	if m.Enabled {
		// Run a single check synchronously for immediate feedback
		res, err := s.Dispatcher.CheckNow(context.WithoutCancel(r.Context()), m.ID)
		if err != nil {
			s.Logger.Warn("initial_check_error", zap.String("monitor_id", m.ID), zap.Error(err))
		} else {
			resp["result"] = res
			if !res.Success && (m.Type == domain.TypeHTTP || m.Type == domain.TypeHTTPS) {
				s.logDNS(r, m.URL)
			}
		}
		if fresh, err := s.Monitors.Get(r.Context(), m.ID); err == nil {
			resp["monitor"] = fresh
		}
	}

	s.Logger.Info("added_monitor",
		zap.String("monitor_id", m.ID),
		zap.String("url", m.URL),
		zap.String("type", string(m.Type)),
	)
	writeJSON(w, http.StatusCreated, resp)
}

// logDNS records a DNS classification next to a failed first check.
func (s *Server) logDNS(r *http.Request, rawURL string) {
	dns := probe.CheckDNS(r.Context(), net.DefaultResolver, extractHost(rawURL))
	s.Logger.Info("dns_check",
		zap.String("domain", dns.Domain),
		zap.String("class", dns.Class),
		zap.Bool("has_a_or_aaaa", dns.HasAOrAAAA),
		zap.Strings("nameservers", dns.Nameservers),
		zap.String("cname", dns.CNAME),
		zap.String("resolver_error", dns.ResolverError),
	)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Monitors.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Monitor not found")
			return
		}
		s.Logger.Error("delete_monitor_error", zap.String("monitor_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete monitor")
		return
	}
	if s.Mirror != nil {
		if err := s.Mirror.Forget(r.Context(), id); err != nil {
			s.Logger.Warn("status_mirror_forget_error", zap.String("monitor_id", id), zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMonitorStatus serves the mirrored status when the cache has it and
// falls back to the monitor row.
func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := s.Monitors.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Monitor not found")
			return
		}
		s.Logger.Error("get_monitor_error", zap.String("monitor_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch status")
		return
	}

	if s.Mirror != nil {
		cached, err := s.Mirror.Latest(r.Context(), id)
		if err != nil {
			s.Logger.Warn("status_mirror_read_error", zap.String("monitor_id", id), zap.Error(err))
		} else if len(cached) > 0 {
			writeJSON(w, http.StatusOK, map[string]any{"monitorId": id, "source": "cache", "status": cached})
			return
		}
	}

	st := map[string]string{
		"status":                string(m.Status),
		"uptime":                strconv.FormatFloat(m.Uptime, 'f', 2, 64),
		"average_response_time": strconv.FormatFloat(m.AverageResponseTime, 'f', 0, 64),
	}
	if m.LastChecked != nil {
		st["last_checked"] = m.LastChecked.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitorId": id, "source": "store", "status": st})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Monitors.Get(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Monitor not found")
			return
		}
		s.Logger.Error("get_monitor_error", zap.String("monitor_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch metrics")
		return
	}

	hours := queryInt(r, "hours", 24, 1, 24*30)
	limit := queryInt(r, "limit", 100, 1, 1000)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	ms, err := s.Metrics.Since(r.Context(), id, since, limit)
	if err != nil {
		s.Logger.Error("list_metrics_error", zap.String("monitor_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch metrics")
		return
	}
	if ms == nil {
		ms = []domain.Metric{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitorId": id, "metrics": ms})
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return max(lo, min(n, hi))
}

// ---- incidents & stats ----

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	f := repo.IncidentFilter{
		MonitorID: r.URL.Query().Get("monitorId"),
		Status:    domain.IncidentStatus(r.URL.Query().Get("status")),
	}
	switch f.Status {
	case "", domain.IncidentOpen, domain.IncidentInvestigating, domain.IncidentResolved, domain.IncidentClosed:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	in, err := s.Incidents.List(r.Context(), f)
	if err != nil {
		s.Logger.Error("list_incidents_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch incidents")
		return
	}
	if in == nil {
		in = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": in})
}

type dashboardStats struct {
	TotalMonitors    int     `json:"totalMonitors"`
	OnlineMonitors   int     `json:"onlineMonitors"`
	OfflineMonitors  int     `json:"offlineMonitors"`
	DegradedMonitors int     `json:"degradedMonitors"`
	AverageUptime    float64 `json:"averageUptime"`
	OpenIncidents    int     `json:"openIncidents"`
	TotalIncidents   int     `json:"totalIncidents"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Monitors.List(r.Context())
	if err != nil {
		s.Logger.Error("stats_monitors_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch dashboard stats")
		return
	}
	all, err := s.Incidents.List(r.Context(), repo.IncidentFilter{})
	if err != nil {
		s.Logger.Error("stats_incidents_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch dashboard stats")
		return
	}

	st := dashboardStats{TotalMonitors: len(ms), TotalIncidents: len(all), AverageUptime: 100}
	var uptimeSum float64
	for _, m := range ms {
		uptimeSum += m.Uptime
		switch m.Status {
		case domain.StatusOnline:
			st.OnlineMonitors++
		case domain.StatusOffline:
			st.OfflineMonitors++
		case domain.StatusDegraded:
			st.DegradedMonitors++
		}
	}
	if len(ms) > 0 {
		st.AverageUptime = uptimeSum / float64(len(ms))
	}
	for _, in := range all {
		if in.Status == domain.IncidentOpen {
			st.OpenIncidents++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": st})
}
