package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/nomina/internal/lifecycle"
)

const reportCacheVersionKey = "payroll:report:version"

var _ lifecycle.Invalidator = (*ReportCache)(nil)

// ReportCache stores finished reports in Redis under a version that every record write
// and every employee lifecycle change bumps.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache instantiates the cache helper. A nil client disables caching.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReportCache{client: client, ttl: ttl}
}

func (c *ReportCache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising it when missing.
func (c *ReportCache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, reportCacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, reportCacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, reportCacheVersionKey).Int64()
	}
	return ver, err
}

// BuildKey composes a versioned key.
func (c *ReportCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"payroll", "report"}, parts...), ":")
	if !c.enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// Get loads a cached report. The boolean is false on a miss.
func (c *ReportCache) Get(ctx context.Context, key string) (ReportTotals, bool, error) {
	if !c.enabled() {
		return ReportTotals{}, false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ReportTotals{}, false, nil
	}
	if err != nil {
		return ReportTotals{}, false, err
	}
	var totals ReportTotals
	if err := json.Unmarshal(payload, &totals); err != nil {
		return ReportTotals{}, false, err
	}
	return totals, true, nil
}

// Put stores a report under key.
func (c *ReportCache) Put(ctx context.Context, key string, totals ReportTotals) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(totals)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates every cached report.
func (c *ReportCache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, reportCacheVersionKey).Err()
}
