package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/user"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

// hydrate must be called with the lock held.
func (repo *attendanceRepository) hydrate(att attendance.Attendance) attendance.Attendance {
	if ev, ok := repo.db.events[att.EventID]; ok {
		att.EventTitle = ev.Title
	}
	if u, ok := repo.db.users[att.UserID]; ok {
		att.Username, att.UserName, att.UserEmail = u.Username, u.FullName(), u.Email
	}
	return att
}

// Admit holds the write lock for the whole check-then-insert sequence.
func (repo *attendanceRepository) Admit(_ context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ev, ok := repo.db.events[att.EventID]
	if !ok {
		return attendance.Attendance{}, event.ErrNotFound
	}
	if _, ok = repo.db.users[att.UserID]; !ok {
		return attendance.Attendance{}, user.ErrNotFound
	}

	adm := attendance.Admission{Event: ev}
	for _, a := range repo.db.attendance {
		if a.EventID != att.EventID {
			continue
		}
		adm.Count++
		if a.UserID == att.UserID {
			adm.Registered = true
		}
	}
	if err := adm.Check(); err != nil {
		return attendance.Attendance{}, err
	}

	att.ID = repo.db.nextID("attendance")
	repo.db.attendance[att.ID] = att
	return repo.hydrate(att), nil
}

func (repo *attendanceRepository) GetAttendanceByID(_ context.Context, id int64) (attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if att, ok := repo.db.attendance[id]; ok {
		return repo.hydrate(att), nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) GetAttendance(_ context.Context, eventID, userID int64) (attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, att := range repo.db.attendance {
		if att.EventID == eventID && att.UserID == userID {
			return repo.hydrate(att), nil
		}
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) QueryAttendance(_ context.Context, filter attendance.QueryFilter, page core.Page) ([]attendance.Attendance, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	atts := make([]attendance.Attendance, 0)
	for _, att := range repo.db.attendance {
		if filter.Matches(att) {
			atts = append(atts, repo.hydrate(att))
		}
	}
	newestFirst := filter.UserID != 0
	sort.Slice(atts, func(i, j int) bool {
		a, b := atts[i], atts[j]
		if a.CheckedInAt.Equal(b.CheckedInAt) {
			return (a.ID < b.ID) != newestFirst
		}
		return a.CheckedInAt.Before(b.CheckedInAt) != newestFirst
	})
	start, end := page.Slice(len(atts))
	return atts[start:end], len(atts), nil
}

func (repo *attendanceRepository) DeleteAttendance(_ context.Context, id int64) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.attendance[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(repo.db.attendance, id)
	return nil
}
