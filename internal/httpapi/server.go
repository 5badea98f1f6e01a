package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/pulseops/internal/httpapi/middleware"
	"github.com/hamed0406/pulseops/internal/repo"
	"github.com/hamed0406/pulseops/internal/scheduler"
)

// Dispatcher is satisfied by *scheduler.Dispatcher.
type Dispatcher interface {
	RunCycle(ctx context.Context) (scheduler.Report, error)
	CheckAll(ctx context.Context) (scheduler.Report, error)
	CheckNow(ctx context.Context, monitorID string) (scheduler.MonitorResult, error)
}

// StatusCache is the mirrored status of each monitor, satisfied by
// *cache.RedisMirror.
type StatusCache interface {
	Latest(ctx context.Context, monitorID string) (map[string]string, error)
	Forget(ctx context.Context, monitorID string) error
}

type Server struct {
	Logger     *zap.Logger
	Monitors   repo.MonitorStore
	Metrics    repo.MetricStore
	Incidents  repo.IncidentStore
	Dispatcher Dispatcher
	CronSecret string
	Mirror     StatusCache // optional
}

func NewServer(l *zap.Logger, ms repo.MonitorStore, mt repo.MetricStore, is repo.IncidentStore, d Dispatcher, cronSecret string) *Server {
	return &Server{Logger: l, Monitors: ms, Metrics: mt, Incidents: is, Dispatcher: d, CronSecret: cronSecret}
}

// Router wires routes. Public endpoints accept public or admin keys; writes
// need an admin key; the cron trigger needs the bearer secret.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	cron := r.With(apimw.RequireBearer(s.CronSecret))
	cron.Get("/api/cron/master", s.handleCronMaster)
	cron.Post("/api/cron/master", s.handleCronMaster)

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.RequireAny(keys))
		r.Get("/api/monitors", s.handleListMonitors)
		r.Get("/api/monitors/{id}/metrics", s.handleMetrics)
		r.Get("/api/monitors/{id}/status", s.handleMonitorStatus)
		r.Post("/api/monitors/check-now", s.handleCheckNow)
		r.Get("/api/incidents", s.handleListIncidents)
		r.Get("/api/dashboard/stats", s.handleStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(admRPM, admBurst))
		r.Use(apimw.RequireAdmin(keys))
		r.Post("/api/monitors", s.handleCreateMonitor)
		r.Delete("/api/monitors/{id}", s.handleDeleteMonitor)
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
