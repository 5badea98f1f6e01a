package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/pulseops/internal/domain"
	"github.com/hamed0406/pulseops/internal/repo"
)

// Store keeps monitors, metrics and incidents in process memory. It is the
// default backend when no DATABASE_URL is configured.
type Store struct {
	mu        sync.RWMutex
	monitors  map[string]*domain.Monitor
	metrics   map[string][]domain.Metric // by monitor id
	metricIDs map[string]struct{}
	incidents map[string]*domain.Incident
}

func New() *Store {
	return &Store{
		monitors:  make(map[string]*domain.Monitor),
		metrics:   make(map[string][]domain.Metric),
		metricIDs: make(map[string]struct{}),
		incidents: make(map[string]*domain.Incident),
	}
}

func (s *Store) Monitors() *MonitorStore   { return &MonitorStore{s} }
func (s *Store) Metrics() *MetricStore     { return &MetricStore{s} }
func (s *Store) Incidents() *IncidentStore { return &IncidentStore{s} }

// ---- MonitorStore ----

type MonitorStore struct{ s *Store }

func (m *MonitorStore) Create(ctx context.Context, mon *domain.Monitor) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if mon.ID == "" {
		mon.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if mon.CreatedAt.IsZero() {
		mon.CreatedAt = now
	}
	mon.UpdatedAt = now
	cp := *mon
	m.s.monitors[mon.ID] = &cp
	return nil
}

func (m *MonitorStore) Get(ctx context.Context, id string) (*domain.Monitor, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	mon, ok := m.s.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *mon
	return &cp, nil
}

func (m *MonitorStore) List(ctx context.Context) ([]domain.Monitor, error) {
	return m.list(func(domain.Monitor) bool { return true }), nil
}

func (m *MonitorStore) ListEnabled(ctx context.Context) ([]domain.Monitor, error) {
	return m.list(func(mon domain.Monitor) bool { return mon.Enabled }), nil
}

func (m *MonitorStore) list(keep func(domain.Monitor) bool) []domain.Monitor {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(m.s.monitors))
	for _, mon := range m.s.monitors {
		if keep(*mon) {
			out = append(out, *mon)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MonitorStore) Delete(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.monitors[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.s.monitors, id)
	for _, mt := range m.s.metrics[id] {
		delete(m.s.metricIDs, mt.ID)
	}
	delete(m.s.metrics, id)
	for iid, in := range m.s.incidents {
		if in.MonitorID == id {
			delete(m.s.incidents, iid)
		}
	}
	return nil
}

func (m *MonitorStore) UpdateHealth(ctx context.Context, id string, h domain.Health) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	mon, ok := m.s.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	checked := h.LastChecked
	mon.Status = h.Status
	mon.Uptime = h.Uptime
	mon.AverageResponseTime = h.AverageResponseTime
	mon.LastChecked = &checked
	mon.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- MetricStore ----

type MetricStore struct{ s *Store }

// Record appends mt. An ID that is already stored is ignored.
func (m *MetricStore) Record(ctx context.Context, mt *domain.Metric) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	prepareMetric(mt)
	if _, dup := m.s.metricIDs[mt.ID]; dup {
		return nil
	}
	m.s.appendMetric(*mt)
	return nil
}

func (m *MetricStore) RecordBatch(ctx context.Context, ms []domain.Metric) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for i := range ms {
		prepareMetric(&ms[i])
		if _, dup := m.s.metricIDs[ms[i].ID]; dup {
			continue
		}
		m.s.appendMetric(ms[i])
		n++
	}
	return n, nil
}

func prepareMetric(mt *domain.Metric) {
	if mt.ID == "" {
		mt.ID = uuid.NewString()
	}
	if mt.Timestamp.IsZero() {
		mt.Timestamp = time.Now().UTC()
	}
}

// caller holds s.mu
func (s *Store) appendMetric(mt domain.Metric) {
	s.metrics[mt.MonitorID] = append(s.metrics[mt.MonitorID], mt)
	s.metricIDs[mt.ID] = struct{}{}
}

func (m *MetricStore) Window(ctx context.Context, monitorID string, n int) ([]domain.Metric, error) {
	return m.newestFirst(monitorID, time.Time{}, n), nil
}

func (m *MetricStore) Since(ctx context.Context, monitorID string, since time.Time, limit int) ([]domain.Metric, error) {
	return m.newestFirst(monitorID, since, limit), nil
}

func (m *MetricStore) newestFirst(monitorID string, since time.Time, limit int) []domain.Metric {
	m.s.mu.RLock()
	all := m.s.metrics[monitorID]
	out := make([]domain.Metric, 0, len(all))
	for _, mt := range all {
		if !mt.Timestamp.Before(since) {
			out = append(out, mt)
		}
	}
	m.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MetricStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, list := range m.s.metrics {
		kept := list[:0]
		for _, mt := range list {
			if mt.Timestamp.Before(olderThan) {
				delete(m.s.metricIDs, mt.ID)
				n++
				continue
			}
			kept = append(kept, mt)
		}
		m.s.metrics[id] = kept
	}
	return n, nil
}

// ---- IncidentStore ----

type IncidentStore struct{ s *Store }

func (is *IncidentStore) Create(ctx context.Context, in *domain.Incident) error {
	is.s.mu.Lock()
	defer is.s.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if in.StartedAt.IsZero() {
		in.StartedAt = now
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	cp := *in
	is.s.incidents[in.ID] = &cp
	return nil
}

func (is *IncidentStore) ListOpen(ctx context.Context, monitorID string) ([]domain.Incident, error) {
	return is.List(ctx, repo.IncidentFilter{MonitorID: monitorID, Status: domain.IncidentOpen})
}

func (is *IncidentStore) Resolve(ctx context.Context, ids []string, at time.Time) (int64, error) {
	is.s.mu.Lock()
	defer is.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		in, ok := is.s.incidents[id]
		if !ok || in.Status != domain.IncidentOpen {
			continue
		}
		resolved := at
		in.Status = domain.IncidentResolved
		in.ResolvedAt = &resolved
		in.UpdatedAt = at
		n++
	}
	return n, nil
}

func (is *IncidentStore) CloseResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	is.s.mu.Lock()
	defer is.s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, in := range is.s.incidents {
		if in.Status == domain.IncidentResolved && in.ResolvedAt != nil && in.ResolvedAt.Before(cutoff) {
			in.Status = domain.IncidentClosed
			in.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (is *IncidentStore) List(ctx context.Context, f repo.IncidentFilter) ([]domain.Incident, error) {
	is.s.mu.RLock()
	defer is.s.mu.RUnlock()
	out := make([]domain.Incident, 0)
	for _, in := range is.s.incidents {
		if f.MonitorID != "" && in.MonitorID != f.MonitorID {
			continue
		}
		if f.Status != "" && in.Status != f.Status {
			continue
		}
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

var (
	_ repo.MonitorStore  = (*MonitorStore)(nil)
	_ repo.MetricStore   = (*MetricStore)(nil)
	_ repo.IncidentStore = (*IncidentStore)(nil)
)
