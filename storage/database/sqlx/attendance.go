package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/user"
)

const (
	attendanceColumns = `a.id, a.event_id, a.user_id, a.checked_in_at, a.check_in_method, e.title AS event_title,
		u.username, (u.first_name || ' ' || u.last_name) AS user_name, u.email AS user_email`
	attendanceFrom = `FROM attendance a JOIN events e ON e.id = a.event_id JOIN users u ON u.id = a.user_id`
)

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

// trapConstraintErr maps the structural guarantees of the attendance table to admission errors.
func (repo attendanceRepository) trapConstraintErr(err error, msg string) error {
	if pqErr, ok := pqError(err); ok {
		switch {
		case pqErr.Code == pqUniqueViolation && pqErr.Constraint == "unique_attendance":
			return attendance.ErrDuplicateRegistration
		case pqErr.Code == pqCheckViolation && pqErr.Constraint == "attendance_event_active":
			return attendance.ErrEventInactive
		case pqErr.Code == pqForeignKeyViolation && pqErr.Constraint == "attendance_user_id_fkey":
			return user.ErrNotFound
		case pqErr.Code == pqForeignKeyViolation && pqErr.Constraint == "attendance_event_id_fkey":
			return event.ErrNotFound
		}
	}
	return errors.Wrap(err, msg)
}

// Admit locks the event row so that concurrent admissions to the same event are serialized:
// the count observed by Check is the count the insert commits against.
func (repo attendanceRepository) Admit(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var adm attendance.Admission
	err = tx.GetContext(ctx, &adm.Event,
		"SELECT id, title, start_time, end_time, max_capacity, department_id, created_by, state FROM events WHERE id = $1 FOR UPDATE",
		att.EventID)
	if err != nil {
		return attendance.Attendance{}, trapNoRowsErr(err, event.ErrNotFound, "locking event")
	}

	var userExists bool
	if err = tx.GetContext(ctx, &userExists, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", att.UserID); err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "checking user")
	}
	if !userExists {
		return attendance.Attendance{}, user.ErrNotFound
	}

	err = tx.GetContext(ctx, &adm.Registered,
		"SELECT EXISTS(SELECT 1 FROM attendance WHERE event_id = $1 AND user_id = $2)", att.EventID, att.UserID)
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "checking registration")
	}
	if err = tx.GetContext(ctx, &adm.Count, "SELECT COUNT(*) FROM attendance WHERE event_id = $1", att.EventID); err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "counting attendance")
	}
	if err = adm.Check(); err != nil {
		return attendance.Attendance{}, err
	}

	err = tx.GetContext(ctx, &att.ID,
		"INSERT INTO attendance (event_id, user_id, checked_in_at, check_in_method) VALUES ($1, $2, $3, $4) RETURNING id",
		att.EventID, att.UserID, att.CheckedInAt, att.Method)
	if err != nil {
		return attendance.Attendance{}, repo.trapConstraintErr(err, "inserting attendance")
	}
	if err = tx.Commit(); err != nil {
		return attendance.Attendance{}, repo.trapConstraintErr(err, "committing attendance")
	}
	return repo.GetAttendanceByID(ctx, att.ID)
}

func (repo attendanceRepository) getAttendance(ctx context.Context, cond string, args ...interface{}) (attendance.Attendance, error) {
	var att attendance.Attendance
	if err := repo.db.GetContext(ctx, &att, "SELECT "+attendanceColumns+" "+attendanceFrom+" WHERE "+cond, args...); err != nil {
		return attendance.Attendance{}, trapNoRowsErr(err, attendance.ErrNotFound, "selecting attendance")
	}
	return att, nil
}

func (repo attendanceRepository) GetAttendanceByID(ctx context.Context, id int64) (attendance.Attendance, error) {
	return repo.getAttendance(ctx, "a.id = $1", id)
}

func (repo attendanceRepository) GetAttendance(ctx context.Context, eventID, userID int64) (attendance.Attendance, error) {
	return repo.getAttendance(ctx, "a.event_id = $1 AND a.user_id = $2", eventID, userID)
}

func (repo attendanceRepository) QueryAttendance(ctx context.Context, filter attendance.QueryFilter, page core.Page) ([]attendance.Attendance, int, error) {
	var w where
	order := " ORDER BY a.checked_in_at ASC, a.id ASC"
	if filter.EventID != 0 {
		w.add("a.event_id = ?", filter.EventID)
	}
	if filter.UserID != 0 {
		w.add("a.user_id = ?", filter.UserID)
		order = " ORDER BY a.checked_in_at DESC, a.id DESC"
	}

	atts := make([]attendance.Attendance, 0)
	total, err := selectPage(ctx, repo.db, &atts, attendanceColumns, attendanceFrom, w, order, page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying attendance")
	}
	return atts, total, nil
}

func (repo attendanceRepository) DeleteAttendance(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM attendance WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}
