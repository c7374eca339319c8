package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core/analytics"
)

type analyticsRepository struct {
	db *sqlx.DB
}

var _ analytics.Repository = (*analyticsRepository)(nil)

func NewAnalyticsRepository(db *sqlx.DB) analytics.Repository {
	return &analyticsRepository{db: db}
}

func (repo analyticsRepository) Dashboard(ctx context.Context, deptID null.Int64, now time.Time) (analytics.Dashboard, error) {
	// $1 is NULL for the global dashboard
	const q = `SELECT
		(SELECT COUNT(*) FROM users WHERE $1::BIGINT IS NULL OR department_id = $1) AS total_users,
		(SELECT COUNT(*) FROM users WHERE role = 'student' AND ($1::BIGINT IS NULL OR department_id = $1)) AS total_students,
		(SELECT COUNT(*) FROM departments WHERE $1::BIGINT IS NULL OR id = $1) AS total_departments,
		(SELECT COUNT(*) FROM events WHERE $1::BIGINT IS NULL OR department_id = $1) AS total_events,
		(SELECT COUNT(*) FROM events WHERE state = 'active' AND ($1::BIGINT IS NULL OR department_id = $1)) AS active_events,
		(SELECT COUNT(*) FROM events WHERE state = 'active' AND start_time >= $2 AND ($1::BIGINT IS NULL OR department_id = $1)) AS upcoming_events,
		(SELECT COUNT(*) FROM attendance a JOIN events e ON e.id = a.event_id WHERE $1::BIGINT IS NULL OR e.department_id = $1) AS total_attendance`

	var row struct {
		TotalUsers       int `db:"total_users"`
		TotalStudents    int `db:"total_students"`
		TotalDepartments int `db:"total_departments"`
		TotalEvents      int `db:"total_events"`
		ActiveEvents     int `db:"active_events"`
		UpcomingEvents   int `db:"upcoming_events"`
		TotalAttendance  int `db:"total_attendance"`
	}
	if err := repo.db.GetContext(ctx, &row, q, deptID, now); err != nil {
		return analytics.Dashboard{}, errors.Wrap(err, "computing dashboard")
	}
	return analytics.Dashboard(row), nil
}

func (repo analyticsRepository) EventStats(ctx context.Context, deptID null.Int64) ([]analytics.EventStat, error) {
	const q = `SELECT e.id, e.title, e.start_time, d.name AS department, e.max_capacity,
			(SELECT COUNT(*) FROM attendance a WHERE a.event_id = e.id) AS attendance_count
		FROM events e JOIN departments d ON d.id = e.department_id
		WHERE $1::BIGINT IS NULL OR e.department_id = $1
		ORDER BY e.start_time DESC, e.id DESC`
	stats := make([]analytics.EventStat, 0)
	if err := repo.db.SelectContext(ctx, &stats, q, deptID); err != nil {
		return nil, errors.Wrap(err, "computing event stats")
	}
	return stats, nil
}

func (repo analyticsRepository) DepartmentStats(ctx context.Context) ([]analytics.DepartmentStat, error) {
	const q = `SELECT d.id, d.name,
			(SELECT COUNT(*) FROM users u WHERE u.department_id = d.id) AS user_count,
			(SELECT COUNT(*) FROM events e WHERE e.department_id = d.id) AS event_count,
			(SELECT COUNT(*) FROM attendance a JOIN events e ON e.id = a.event_id WHERE e.department_id = d.id) AS attendance_count
		FROM departments d
		ORDER BY d.name`
	stats := make([]analytics.DepartmentStat, 0)
	if err := repo.db.SelectContext(ctx, &stats, q); err != nil {
		return nil, errors.Wrap(err, "computing department stats")
	}
	return stats, nil
}
