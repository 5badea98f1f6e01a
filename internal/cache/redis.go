package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hamed0406/pulseops/internal/domain"
)

// HistoryLen bounds the per-monitor status history list.
const HistoryLen = 100

// RedisMirror keeps the latest health of each monitor in Redis for dashboards
// that should not hit the primary store.
type RedisMirror struct {
	rdb *redis.Client
}

func Connect(ctx context.Context, url string) (*RedisMirror, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisMirror{rdb: rdb}, nil
}

func (r *RedisMirror) Close() error { return r.rdb.Close() }

func statusKey(id string) string  { return "monitor:" + id }
func historyKey(id string) string { return "monitor:" + id + ":history" }
func dailyKey(id string, day time.Time) string {
	return "monitor:" + id + ":metrics:" + day.UTC().Format("2006-01-02")
}

// historyEntry is one check as stored in the history list.
type historyEntry struct {
	Timestamp    string        `json:"timestamp"`
	Status       domain.Status `json:"status"`
	Success      bool          `json:"success"`
	ResponseTime int64         `json:"responseTime"`
	StatusCode   int           `json:"statusCode,omitempty"`
}

func newHistoryEntry(h domain.Health, latest domain.CheckResult) historyEntry {
	return historyEntry{
		Timestamp:    h.LastChecked.UTC().Format(time.RFC3339),
		Status:       h.Status,
		Success:      latest.Success,
		ResponseTime: latest.ResponseTimeMS,
		StatusCode:   latest.StatusCode,
	}
}

// Mirror writes status hash, history entry and daily counters in one pipeline.
func (r *RedisMirror) Mirror(ctx context.Context, monitorID string, h domain.Health, latest domain.CheckResult) error {
	entry, err := json.Marshal(newHistoryEntry(h, latest))
	if err != nil {
		return fmt.Errorf("history entry: %w", err)
	}
	daily := dailyKey(monitorID, h.LastChecked)

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, statusKey(monitorID), map[string]interface{}{
			"status":                string(h.Status),
			"uptime":                strconv.FormatFloat(h.Uptime, 'f', 2, 64),
			"average_response_time": strconv.FormatFloat(h.AverageResponseTime, 'f', 0, 64),
			"last_checked":          h.LastChecked.UTC().Format(time.RFC3339),
			"last_response_time":    strconv.FormatInt(latest.ResponseTimeMS, 10),
		})
		p.RPush(ctx, historyKey(monitorID), entry)
		p.LTrim(ctx, historyKey(monitorID), -HistoryLen, -1)
		p.HIncrBy(ctx, daily, "total_checks", 1)
		p.HIncrBy(ctx, daily, string(h.Status), 1)
		p.Expire(ctx, daily, 30*24*time.Hour)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mirror: %w", err)
	}
	return nil
}

// Latest reads back the mirrored status hash. Missing keys yield an empty map.
func (r *RedisMirror) Latest(ctx context.Context, monitorID string) (map[string]string, error) {
	m, err := r.rdb.HGetAll(ctx, statusKey(monitorID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis latest: %w", err)
	}
	return m, nil
}

// Forget removes everything mirrored for a deleted monitor.
func (r *RedisMirror) Forget(ctx context.Context, monitorID string) error {
	if err := r.rdb.Del(ctx, statusKey(monitorID), historyKey(monitorID)).Err(); err != nil {
		return fmt.Errorf("redis forget: %w", err)
	}
	return nil
}
