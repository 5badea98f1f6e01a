// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"

	"github.com/hamed0406/pulseops/internal/config"
)

type checker struct {
	failed bool
}

func (c *checker) fail(msg string) {
	fmt.Fprintln(os.Stderr, "✖", msg)
	c.failed = true
}
func (c *checker) warn(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
func (c *checker) ok(msg string)   { fmt.Println("✔", msg) }

// run validates cfg; ping is nil to skip connecting to the database.
func run(c *checker, cfg config.Config, ping func(dsn string) error) {
	if len(cfg.AdminAPIKeys) == 0 {
		c.fail("ADMIN_API_KEYS is empty (admin routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		c.warn("PUBLIC_API_KEYS is empty (read routes accept admin keys only, or everything when no keys are set).")
	}
	for name, v := range map[string]string{"ADMIN_API_KEYS": os.Getenv("ADMIN_API_KEYS"), "PUBLIC_API_KEYS": os.Getenv("PUBLIC_API_KEYS")} {
		if strings.Contains(v, " ") {
			c.warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if cfg.CronSecret == "" {
		c.fail("CRON_SECRET is empty (/api/cron/master rejects every call).")
	} else if len(cfg.CronSecret) < 16 {
		c.warn("CRON_SECRET is shorter than 16 characters.")
	} else {
		c.ok("CRON_SECRET present")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{"CYCLE_SCHEDULE": cfg.CycleSchedule, "MAINTENANCE_SCHEDULE": cfg.MaintenanceSchedule} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			c.fail(fmt.Sprintf("%s=%q is not a valid schedule: %v", name, spec, err))
		} else {
			c.ok(name + "=" + spec)
		}
	}

	for name, raw := range map[string]string{"REDIS_URL": cfg.RedisURL, "NATS_URL": cfg.NATSURL, "SLACK_WEBHOOK": cfg.SlackWebhook} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			c.fail(name + " is not a valid URL.")
		} else {
			c.ok(name + " present")
		}
	}

	if cfg.MonitorsFile != "" {
		if ms, err := config.LoadMonitors(cfg.MonitorsFile); err != nil {
			c.fail("MONITORS_FILE: " + err.Error())
		} else {
			c.ok(fmt.Sprintf("MONITORS_FILE has %d monitor(s)", len(ms)))
		}
	}

	if cfg.DatabaseURL == "" {
		c.warn("DATABASE_URL empty; API will use in-memory stores.")
	} else if ping != nil {
		if err := ping(cfg.DatabaseURL); err != nil {
			c.fail("DATABASE_URL: " + err.Error())
		} else {
			c.ok("DATABASE_URL reachable")
		}
	}

	if len(cfg.AllowedOrigins) == 0 {
		c.warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		c.ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	c.ok("ADDR=" + cfg.Addr)
}

func pingDB(dsn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

func main() {
	c := &checker{}
	run(c, config.FromEnv(), pingDB)
	if c.failed {
		os.Exit(1)
	}
	c.ok("preflight passed")
}
