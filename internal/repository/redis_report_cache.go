package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RiskPulse/internal/domain/models"
	domrepo "RiskPulse/internal/domain/repository"
	"RiskPulse/pkg/cache"
)

// ReportCache stores generated reports in a cache.Service (Redis, memory or
// both layered) keyed by report name.
type ReportCache struct {
	c   cache.Service
	ttl time.Duration
}

func NewReportCache(c cache.Service, ttl time.Duration) *ReportCache {
	return &ReportCache{c: c, ttl: ttl}
}

func reportKey(name string) string { return cache.GenerateKey("report", name) }

func lockKey(name string) string { return cache.GenerateKeyWithParams("lock", "refresh", name) }

func (rc *ReportCache) Get(ctx context.Context, name string) (*models.Report, error) {
	r, err := cache.GetTyped[models.Report](ctx, rc.c, reportKey(name))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrNotCached
		}
		return nil, fmt.Errorf("report cache get %s: %w", name, err)
	}
	return &r, nil
}

func (rc *ReportCache) Put(ctx context.Context, r *models.Report) error {
	if err := rc.c.Set(ctx, reportKey(r.Name), r, rc.ttl); err != nil {
		return fmt.Errorf("report cache put %s: %w", r.Name, err)
	}
	return nil
}

func (rc *ReportCache) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return rc.c.TryLock(ctx, lockKey(name), ttl)
}

func (rc *ReportCache) Unlock(ctx context.Context, name string) error {
	return rc.c.Unlock(ctx, lockKey(name))
}
