package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/domain"
	apimw "github.com/hamed0406/pulseops/internal/httpapi/middleware"
	"github.com/hamed0406/pulseops/internal/incident"
	"github.com/hamed0406/pulseops/internal/maintenance"
	"github.com/hamed0406/pulseops/internal/repo/memory"
	"github.com/hamed0406/pulseops/internal/scheduler"
	"github.com/hamed0406/pulseops/internal/status"
)

// ---- test helpers ----

type fakeProber struct {
	out domain.CheckResult
}

func (f *fakeProber) Check(_ context.Context, _ domain.Monitor) domain.CheckResult {
	// always return the same result so tests are deterministic
	return f.out
}

// ctxProber fails the way a real HTTP check does when its context is gone.
type ctxProber struct{}

func (ctxProber) Check(ctx context.Context, _ domain.Monitor) domain.CheckResult {
	if err := ctx.Err(); err != nil {
		return domain.CheckResult{Success: false, ErrorMessage: err.Error()}
	}
	return okResult
}

type blockingCycle struct{}

func (blockingCycle) RunCycle(context.Context) (scheduler.Report, error) {
	return scheduler.Report{Skipped: true, Timestamp: time.Now().UTC()}, scheduler.ErrCycleRunning
}
func (blockingCycle) CheckAll(context.Context) (scheduler.Report, error) {
	return scheduler.Report{}, nil
}
func (blockingCycle) CheckNow(context.Context, string) (scheduler.MonitorResult, error) {
	return scheduler.MonitorResult{}, nil
}

type env struct {
	ts      *httptest.Server
	handler http.Handler
	store   *memory.Store
}

func setup(t *testing.T, out domain.CheckResult) *env {
	t.Helper()
	return setupWith(t, &fakeProber{out: out})
}

func setupWith(t *testing.T, p scheduler.Prober) *env {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	machine := incident.New(store.Incidents(), nil, log)
	agg := status.NewAggregator(store.Monitors(), store.Metrics(), machine, log)
	maint := maintenance.NewRunner(log,
		maintenance.MetricPruner{Metrics: store.Metrics()},
		maintenance.IncidentCloser{Incidents: machine},
	)
	d := scheduler.NewDispatcher(log, store.Monitors(), store.Metrics(), p, agg, maint, scheduler.Config{})

	srv := NewServer(log, store.Monitors(), store.Metrics(), store.Incidents(), d, "cron_test")
	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	h := srv.Router(keys, nil, 10_000, 10_000, 10_000, 10_000)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &env{ts: ts, handler: h, store: store}
}

func (e *env) do(t *testing.T, method, path, key string, body []byte) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, e.ts.URL+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *env) addMonitor(t *testing.T, m *domain.Monitor) {
	t.Helper()
	m.ApplyDefaults()
	if err := e.store.Monitors().Create(context.Background(), m); err != nil {
		t.Fatal(err)
	}
}

var okResult = domain.CheckResult{Success: true, StatusCode: 200, ResponseTimeMS: 12}

// ---- tests ----

func TestCreateMonitor_OK_Duplicate_Invalid(t *testing.T) {
	e := setup(t, okResult)

	// 1) Add OK
	resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", []byte(`{"name":"home","url":"https://example.com"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	var addResp struct {
		Monitor domain.Monitor          `json:"monitor"`
		Result  scheduler.MonitorResult `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&addResp); err != nil {
		t.Fatalf("decode add resp: %v", err)
	}
	if addResp.Monitor.URL != "https://example.com" || addResp.Monitor.Type != domain.TypeHTTPS {
		t.Fatalf("unexpected monitor: %+v", addResp.Monitor)
	}
	if !addResp.Result.Success || addResp.Result.StatusCode != 200 {
		t.Fatalf("expected immediate check result, got %+v", addResp.Result)
	}
	if addResp.Monitor.LastChecked == nil || addResp.Monitor.Status != domain.StatusOnline {
		t.Fatalf("monitor not refreshed after first check: %+v", addResp.Monitor)
	}

	// 2) Duplicate should be 409
	resp = e.do(t, http.MethodPost, "/api/monitors", "adm_test", []byte(`{"url":"https://EXAMPLE.com/"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", resp.StatusCode)
	}

	// 3) Invalid URL should be 400
	resp = e.do(t, http.MethodPost, "/api/monitors", "adm_test", []byte(`{"url":"ftp://bad"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on invalid URL, got %d", resp.StatusCode)
	}

	// 4) Unsupported type should be 400
	resp = e.do(t, http.MethodPost, "/api/monitors", "adm_test", []byte(`{"url":"mail.example.com","type":"smtp"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on bad type, got %d", resp.StatusCode)
	}

	// 5) public key cannot write
	resp = e.do(t, http.MethodPost, "/api/monitors", "pub_test", []byte(`{"url":"https://other.example.com"}`))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403 for public key, got %d", resp.StatusCode)
	}
}

func TestListMonitorsAndMetrics(t *testing.T) {
	e := setup(t, okResult)
	e.do(t, http.MethodPost, "/api/monitors", "adm_test", []byte(`{"url":"https://example.com"}`))

	resp := e.do(t, http.MethodGet, "/api/monitors", "pub_test", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("want 200 list, got %d", resp.StatusCode)
	}
	var list []domain.Monitor
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	resp = e.do(t, http.MethodGet, "/api/monitors/"+list[0].ID+"/metrics?hours=1&limit=10", "pub_test", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("want 200 metrics, got %d", resp.StatusCode)
	}
	var mr struct {
		Metrics []domain.Metric `json:"metrics"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&mr)
	if len(mr.Metrics) != 1 || mr.Metrics[0].StatusCode != 200 {
		t.Fatalf("unexpected metrics: %+v", mr.Metrics)
	}

	resp = e.do(t, http.MethodGet, "/api/monitors/missing/metrics", "pub_test", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 for unknown monitor, got %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodGet, "/api/monitors", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 without key, got %d", resp.StatusCode)
	}
}

func TestCronMaster(t *testing.T) {
	e := setup(t, okResult)
	e.addMonitor(t, &domain.Monitor{Name: "a", URL: "https://a.example.com", Enabled: true})
	e.addMonitor(t, &domain.Monitor{Name: "b", URL: "https://b.example.com", Enabled: true})

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/cron/master", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 without secret, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, e.ts.URL+"/api/cron/master", nil)
	req.Header.Set("Authorization", "Bearer cron_test")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var body cronResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Skipped || body.Tasks.MonitorsChecked != 2 || body.Tasks.Succeeded != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Details.MonitorResults) != 2 || len(body.Details.Maintenance) != 2 {
		t.Fatalf("unexpected details: %+v", body.Details)
	}
}

func TestCronMaster_SkippedCycle(t *testing.T) {
	srv := NewServer(zap.NewNop(), nil, nil, nil, blockingCycle{}, "s")
	h := srv.Router(apimw.Keys{}, nil, 0, 1, 0, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/cron/master", nil)
	req.Header.Set("Authorization", "Bearer s")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var body cronResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if !body.Skipped || body.Tasks.MonitorsChecked != 0 {
		t.Fatalf("expected skipped report, got %+v", body)
	}
}

func TestCronMaster_EmptySecretRejects(t *testing.T) {
	srv := NewServer(zap.NewNop(), nil, nil, nil, blockingCycle{}, "")
	h := srv.Router(apimw.Keys{}, nil, 0, 1, 0, 1)
	req := httptest.NewRequest(http.MethodGet, "/api/cron/master", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func TestCheckNow(t *testing.T) {
	e := setup(t, domain.CheckResult{Success: false, StatusCode: 503, ResponseTimeMS: 40, ErrorMessage: "Unexpected status code: 503"})
	on := &domain.Monitor{Name: "on", URL: "https://on.example.com", Enabled: true}
	off := &domain.Monitor{Name: "off", URL: "https://off.example.com"}
	e.addMonitor(t, on)
	e.addMonitor(t, off)

	resp := e.do(t, http.MethodPost, "/api/monitors/check-now", "pub_test", []byte(`{"monitorId":"`+on.ID+`"}`))
	if resp.StatusCode != 200 {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var single struct {
		Success bool           `json:"success"`
		Monitor checkedMonitor `json:"monitor"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&single)
	if !single.Success || single.Monitor.Status != domain.StatusOffline || single.Monitor.StatusCode != 503 {
		t.Fatalf("unexpected single result: %+v", single)
	}

	// the failure opened an incident
	resp = e.do(t, http.MethodGet, "/api/incidents?status=open&monitorId="+on.ID, "pub_test", nil)
	var inc struct {
		Incidents []domain.Incident `json:"incidents"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&inc)
	if len(inc.Incidents) != 1 || inc.Incidents[0].Title != "on is down" {
		t.Fatalf("unexpected incidents: %+v", inc.Incidents)
	}

	resp = e.do(t, http.MethodPost, "/api/monitors/check-now", "pub_test", []byte(`{"monitorId":"nope"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
	resp = e.do(t, http.MethodPost, "/api/monitors/check-now", "pub_test", []byte(`{"monitorId":"`+off.ID+`"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for disabled, got %d", resp.StatusCode)
	}

	// no id: every enabled monitor
	resp = e.do(t, http.MethodPost, "/api/monitors/check-now", "pub_test", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var all struct {
		Message string                    `json:"message"`
		Results []scheduler.MonitorResult `json:"results"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&all)
	if len(all.Results) != 1 || all.Message != "Checked 1 monitor(s)" {
		t.Fatalf("unexpected check-all: %+v", all)
	}
}

func TestIncidents_InvalidStatus(t *testing.T) {
	e := setup(t, okResult)
	resp := e.do(t, http.MethodGet, "/api/incidents?status=weird", "pub_test", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func TestDashboardStats(t *testing.T) {
	e := setup(t, okResult)
	ctx := context.Background()
	a := &domain.Monitor{Name: "a", URL: "https://a.example.com", Enabled: true}
	b := &domain.Monitor{Name: "b", URL: "https://b.example.com", Enabled: true}
	e.addMonitor(t, a)
	e.addMonitor(t, b)
	_ = e.store.Monitors().UpdateHealth(ctx, b.ID, domain.Health{Status: domain.StatusOffline, Uptime: 50, LastChecked: time.Now()})
	_ = e.store.Incidents().Create(ctx, &domain.Incident{MonitorID: b.ID, Status: domain.IncidentOpen})

	resp := e.do(t, http.MethodGet, "/api/dashboard/stats", "pub_test", nil)
	var body struct {
		Stats dashboardStats `json:"stats"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	st := body.Stats
	if st.TotalMonitors != 2 || st.OnlineMonitors != 1 || st.OfflineMonitors != 1 || st.AverageUptime != 75 || st.OpenIncidents != 1 || st.TotalIncidents != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestDeleteMonitor(t *testing.T) {
	e := setup(t, okResult)
	m := &domain.Monitor{Name: "a", URL: "https://a.example.com", Enabled: true}
	e.addMonitor(t, m)

	resp := e.do(t, http.MethodDelete, "/api/monitors/"+m.ID, "adm_test", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("want 204, got %d", resp.StatusCode)
	}
	resp = e.do(t, http.MethodDelete, "/api/monitors/"+m.ID, "adm_test", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestCheckNow_CallerCancelDoesNotFailCheck(t *testing.T) {
	e := setupWith(t, ctxProber{})
	m := &domain.Monitor{Name: "a", URL: "https://a.example.com", Enabled: true}
	e.addMonitor(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/monitors/check-now", strings.NewReader(`{"monitorId":"`+m.ID+`"}`)).WithContext(ctx)
	req.Header.Set("X-API-Key", "pub_test")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := e.store.Monitors().Get(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusOnline {
		t.Fatalf("status=%s, want online", got.Status)
	}
	open, _ := e.store.Incidents().ListOpen(context.Background(), m.ID)
	if len(open) != 0 {
		t.Fatalf("unexpected incidents: %+v", open)
	}
}

func TestCronMaster_CallerCancelDoesNotFailCycle(t *testing.T) {
	e := setupWith(t, ctxProber{})
	e.addMonitor(t, &domain.Monitor{Name: "a", URL: "https://a.example.com", Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/cron/master", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer cron_test")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var body cronResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusOK || body.Tasks.Succeeded != 1 || body.Tasks.Failed != 0 {
		t.Fatalf("code=%d body=%+v", rec.Code, body)
	}
}

type fakeCache struct {
	entries   map[string]map[string]string
	forgotten []string
}

func (f *fakeCache) Latest(_ context.Context, id string) (map[string]string, error) {
	return f.entries[id], nil
}

func (f *fakeCache) Forget(_ context.Context, id string) error {
	f.forgotten = append(f.forgotten, id)
	return nil
}

func TestMonitorStatus_CacheThenStore(t *testing.T) {
	log := zap.NewNop()
	store := memory.New()
	cached := &domain.Monitor{Name: "c", URL: "https://c.example.com", Enabled: true}
	plain := &domain.Monitor{Name: "p", URL: "https://p.example.com", Enabled: true}
	for _, m := range []*domain.Monitor{cached, plain} {
		m.ApplyDefaults()
		_ = store.Monitors().Create(context.Background(), m)
	}
	fc := &fakeCache{entries: map[string]map[string]string{
		cached.ID: {"status": "degraded", "last_response_time": "6100"},
	}}
	srv := NewServer(log, store.Monitors(), store.Metrics(), store.Incidents(), blockingCycle{}, "s")
	srv.Mirror = fc
	h := srv.Router(apimw.Keys{}, nil, 0, 1, 0, 1)

	get := func(id string) (int, map[string]any) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/monitors/"+id+"/status", nil))
		var body map[string]any
		_ = json.NewDecoder(rec.Body).Decode(&body)
		return rec.Code, body
	}

	code, body := get(cached.ID)
	st, _ := body["status"].(map[string]any)
	if code != 200 || body["source"] != "cache" || st["status"] != "degraded" || st["last_response_time"] != "6100" {
		t.Fatalf("code=%d body=%v", code, body)
	}

	code, body = get(plain.ID)
	st, _ = body["status"].(map[string]any)
	if code != 200 || body["source"] != "store" || st["status"] != "online" || st["uptime"] != "100.00" {
		t.Fatalf("code=%d body=%v", code, body)
	}

	if code, _ = get("missing"); code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/monitors/"+cached.ID, nil))
	if rec.Code != http.StatusNoContent || len(fc.forgotten) != 1 || fc.forgotten[0] != cached.ID {
		t.Fatalf("delete code=%d forgotten=%v", rec.Code, fc.forgotten)
	}
}
