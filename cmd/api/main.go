package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulseops/internal/cache"
	"github.com/hamed0406/pulseops/internal/config"
	"github.com/hamed0406/pulseops/internal/httpapi"
	apimw "github.com/hamed0406/pulseops/internal/httpapi/middleware"
	"github.com/hamed0406/pulseops/internal/incident"
	"github.com/hamed0406/pulseops/internal/logging"
	"github.com/hamed0406/pulseops/internal/maintenance"
	"github.com/hamed0406/pulseops/internal/notify"
	"github.com/hamed0406/pulseops/internal/probe"
	"github.com/hamed0406/pulseops/internal/repo"
	"github.com/hamed0406/pulseops/internal/repo/memory"
	"github.com/hamed0406/pulseops/internal/repo/postgres"
	"github.com/hamed0406/pulseops/internal/scheduler"
	"github.com/hamed0406/pulseops/internal/status"
)

type stores struct {
	monitors  repo.MonitorStore
	metrics   repo.MetricStore
	incidents repo.IncidentStore
	close     func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("store_memory", zap.String("reason", "DATABASE_URL not set"))
		m := memory.New()
		return stores{m.Monitors(), m.Metrics(), m.Incidents(), func() {}}, nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return stores{}, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return stores{}, err
	}
	logger.Info("store_postgres")
	return stores{pg.Monitors(), pg.Metrics(), pg.Incidents(), pg.Close}, nil
}

func seedMonitors(ctx context.Context, path string, ms repo.MonitorStore, logger *zap.Logger) error {
	seeds, err := config.LoadMonitors(path)
	if err != nil {
		return err
	}
	existing, err := ms.List(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[string(m.Type)+" "+m.URL] = true
	}
	added := 0
	for i := range seeds {
		m := seeds[i]
		if seen[string(m.Type)+" "+m.URL] {
			continue
		}
		if err := ms.Create(ctx, &m); err != nil {
			return err
		}
		added++
	}
	logger.Info("monitors_seeded", zap.String("file", path), zap.Int("added", added), zap.Int("total", len(seeds)))
	return nil
}

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_error", zap.Error(err))
	}
	defer st.close()

	if cfg.MonitorsFile != "" {
		if err := seedMonitors(ctx, cfg.MonitorsFile, st.monitors, logger); err != nil {
			logger.Fatal("monitors_seed_error", zap.String("file", cfg.MonitorsFile), zap.Error(err))
		}
	}

	// Notification channels
	var channels notify.Multi
	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		channels = append(channels, slack)
	}
	if cfg.NATSURL != "" {
		nc, err := notify.NewNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warn("nats_connect_error", zap.Error(err))
		} else {
			defer nc.Close()
			channels = append(channels, nc)
		}
	}
	var queue *notify.Queue
	var notifier incident.Notifier
	if len(channels) > 0 {
		queue = notify.NewQueue(channels, cfg.NotifyQueueSize, logger)
		notifier = queue
		// drained on shutdown by Close, not by signal cancellation
		go queue.Run(context.WithoutCancel(ctx))
	}

	machine := incident.New(st.incidents, notifier, logger)
	agg := status.NewAggregator(st.monitors, st.metrics, machine, logger)

	var mirror *cache.RedisMirror
	if cfg.RedisURL != "" {
		mirror, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis_connect_error", zap.Error(err))
			mirror = nil
		} else {
			defer mirror.Close()
			agg.WithMirror(mirror)
		}
	}

	maint := maintenance.NewRunner(logger,
		maintenance.MetricPruner{Metrics: st.metrics, Retention: cfg.MetricRetention},
		maintenance.IncidentCloser{Incidents: machine, After: cfg.IncidentCloseAfter},
	)
	registry := probe.DefaultRegistry().WithRetry(cfg.RetryAttempts, cfg.RetryBackoff)
	dispatcher := scheduler.NewDispatcher(logger, st.monitors, st.metrics, registry, agg, maint, scheduler.Config{
		BatchSize:       cfg.BatchSize,
		SkipMaintenance: cfg.MaintenanceSchedule != "",
	})

	var trigger *scheduler.Trigger
	if cfg.CycleSchedule != "" {
		trigger = scheduler.NewTrigger(logger, dispatcher, maint)
		if err := trigger.Schedule(cfg.CycleSchedule, cfg.MaintenanceSchedule); err != nil {
			logger.Fatal("trigger_schedule_error", zap.Error(err))
		}
		trigger.Start(ctx)
	}

	if cfg.CronSecret == "" {
		logger.Warn("cron_secret_empty", zap.String("effect", "/api/cron/master rejects every call"))
	}
	api := httpapi.NewServer(logger, st.monitors, st.metrics, st.incidents, dispatcher, cfg.CronSecret)
	if mirror != nil {
		api.Mirror = mirror
	}
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api_listen_error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if trigger != nil {
		trigger.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	if queue != nil {
		queue.Close()
		select {
		case <-queue.Done():
		case <-shutdownCtx.Done():
		}
	}
	logger.Info("shutdown_complete")
}
