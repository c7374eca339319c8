package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core/analytics"
	"github.com/trezcool/mulespace/core/user"
)

type analyticsRepository struct {
	db *DB
}

var _ analytics.Repository = (*analyticsRepository)(nil)

func NewAnalyticsRepository(db *DB) analytics.Repository {
	return &analyticsRepository{db: db}
}

func inScope(deptID null.Int64, id int64) bool {
	return !deptID.Valid || deptID.Int64 == id
}

func (repo *analyticsRepository) Dashboard(_ context.Context, deptID null.Int64, now time.Time) (analytics.Dashboard, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var d analytics.Dashboard
	for _, u := range repo.db.users {
		if deptID.Valid && u.DepartmentID != deptID {
			continue
		}
		d.TotalUsers++
		if u.Role == user.RoleStudent {
			d.TotalStudents++
		}
	}
	for id := range repo.db.departments {
		if inScope(deptID, id) {
			d.TotalDepartments++
		}
	}
	for _, ev := range repo.db.events {
		if !inScope(deptID, ev.DepartmentID) {
			continue
		}
		d.TotalEvents++
		if ev.IsActive() {
			d.ActiveEvents++
			if !ev.StartTime.Before(now) {
				d.UpcomingEvents++
			}
		}
		d.TotalAttendance += repo.db.countAttendance(ev.ID)
	}
	return d, nil
}

func (repo *analyticsRepository) EventStats(_ context.Context, deptID null.Int64) ([]analytics.EventStat, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	stats := make([]analytics.EventStat, 0)
	for _, ev := range repo.db.events {
		if !inScope(deptID, ev.DepartmentID) {
			continue
		}
		stats = append(stats, analytics.EventStat{
			ID:              ev.ID,
			Title:           ev.Title,
			StartTime:       ev.StartTime,
			Department:      repo.db.departments[ev.DepartmentID].Name,
			MaxCapacity:     ev.Capacity,
			AttendanceCount: repo.db.countAttendance(ev.ID),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].StartTime.Equal(stats[j].StartTime) {
			return stats[i].ID > stats[j].ID
		}
		return stats[i].StartTime.After(stats[j].StartTime)
	})
	return stats, nil
}

func (repo *analyticsRepository) DepartmentStats(_ context.Context) ([]analytics.DepartmentStat, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byID := make(map[int64]*analytics.DepartmentStat, len(repo.db.departments))
	stats := make([]analytics.DepartmentStat, 0, len(repo.db.departments))
	for _, d := range repo.db.departments {
		byID[d.ID] = &analytics.DepartmentStat{ID: d.ID, Name: d.Name}
	}
	for _, u := range repo.db.users {
		if s, ok := byID[u.DepartmentID.Int64]; ok && u.DepartmentID.Valid {
			s.UserCount++
		}
	}
	for _, ev := range repo.db.events {
		if s, ok := byID[ev.DepartmentID]; ok {
			s.EventCount++
			s.AttendanceCount += repo.db.countAttendance(ev.ID)
		}
	}
	for _, s := range byID {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats, nil
}
