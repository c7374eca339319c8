package analytics

import (
	"context"
	"strconv"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
)

const cachePrefix = "analytics:"

type (
	Repository interface {
		// Dashboard counts everything when deptID is invalid, otherwise only what belongs to the department.
		Dashboard(ctx context.Context, deptID null.Int64, now time.Time) (Dashboard, error)
		// EventStats lists events by start time, most recent first.
		EventStats(ctx context.Context, deptID null.Int64) ([]EventStat, error)
		DepartmentStats(ctx context.Context) ([]DepartmentStat, error)
	}

	Service interface {
		Dashboard(ctx context.Context, deptID null.Int64) (Dashboard, error)
		EventStats(ctx context.Context, deptID null.Int64) ([]EventStat, error)
		DepartmentStats(ctx context.Context) ([]DepartmentStat, error)
	}

	service struct {
		repo   Repository
		cache  core.Cache
		ttl    time.Duration
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

// NewService caches results for ttl; a nil cache disables caching.
func NewService(repo Repository, cache core.Cache, ttl time.Duration, logger core.Logger) Service {
	return &service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func scopeKey(name string, deptID null.Int64) string {
	if !deptID.Valid {
		return cachePrefix + name + ":all"
	}
	return cachePrefix + name + ":" + strconv.FormatInt(deptID.Int64, 10)
}

// cached loads key into dest, falling back to load (and storing its result) on a miss.
// Cache failures are logged and degrade to load.
func (svc *service) cached(ctx context.Context, key string, dest interface{}, load func() error) error {
	if svc.cache != nil {
		found, err := svc.cache.Get(ctx, key, dest)
		if err != nil {
			svc.logWarn("reading analytics cache", err, key)
		} else if found {
			return nil
		}
	}
	if err := load(); err != nil {
		return err
	}
	if svc.cache != nil {
		if err := svc.cache.Set(ctx, key, dest, svc.ttl); err != nil {
			svc.logWarn("writing analytics cache", err, key)
		}
	}
	return nil
}

func (svc *service) logWarn(msg string, err error, key string) {
	if svc.logger != nil {
		svc.logger.Warn(msg, err, map[string]interface{}{"key": key})
	}
}

func (svc *service) Dashboard(ctx context.Context, deptID null.Int64) (Dashboard, error) {
	var d Dashboard
	err := svc.cached(ctx, scopeKey("dashboard", deptID), &d, func() (err error) {
		d, err = svc.repo.Dashboard(ctx, deptID, time.Now().UTC())
		return err
	})
	return d, err
}

func (svc *service) EventStats(ctx context.Context, deptID null.Int64) ([]EventStat, error) {
	var stats []EventStat
	err := svc.cached(ctx, scopeKey("events", deptID), &stats, func() (err error) {
		if stats, err = svc.repo.EventStats(ctx, deptID); err != nil {
			return err
		}
		for i := range stats {
			stats[i].computeFillRate()
		}
		return nil
	})
	return stats, err
}

func (svc *service) DepartmentStats(ctx context.Context) ([]DepartmentStat, error) {
	var stats []DepartmentStat
	err := svc.cached(ctx, cachePrefix+"departments", &stats, func() (err error) {
		stats, err = svc.repo.DepartmentStats(ctx)
		return err
	})
	return stats, err
}
