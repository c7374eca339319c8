package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/event"
)

type eventRepository struct {
	db *DB
}

var _ event.Repository = (*eventRepository)(nil)

func NewEventRepository(db *DB) event.Repository {
	return &eventRepository{db: db}
}

// hydrateEvent fills the joined fields; it must be called with the lock held.
func (db *DB) hydrateEvent(ev event.Event) event.Event {
	ev.DepartmentName = db.departments[ev.DepartmentID].Name
	if u, ok := db.users[ev.CreatedBy]; ok {
		ev.CreatorName = u.FullName()
	}
	ev.AttendanceCount = db.countAttendance(ev.ID)
	return ev
}

// countAttendance must be called with the lock held.
func (db *DB) countAttendance(eventID int64) int {
	n := 0
	for _, att := range db.attendance {
		if att.EventID == eventID {
			n++
		}
	}
	return n
}

// checkEvent enforces the table constraints; it must be called with the lock held.
func (repo *eventRepository) checkEvent(ev event.Event) error {
	if _, ok := repo.db.departments[ev.DepartmentID]; !ok {
		return core.NewFieldError("department_id", "department not found")
	}
	if !ev.StartTime.Before(ev.EndTime) {
		return core.NewFieldError("end_time", "end_time must be after start_time")
	}
	if ev.Capacity.Valid && ev.Capacity.Int64 < 0 {
		return core.NewFieldError("max_capacity", "max_capacity must be 0 or greater")
	}
	return nil
}

// storedEvent strips the joined fields before saving.
func storedEvent(ev event.Event) event.Event {
	ev.DepartmentName, ev.CreatorName, ev.AttendanceCount = "", "", 0
	return ev
}

func (repo *eventRepository) CreateEvent(_ context.Context, ev event.Event) (event.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkEvent(ev); err != nil {
		return event.Event{}, err
	}
	if ev.State == "" {
		ev.State = event.StateActive
	}
	ev.ID = repo.db.nextID("events")
	repo.db.events[ev.ID] = storedEvent(ev)
	return repo.db.hydrateEvent(ev), nil
}

func (repo *eventRepository) GetEventByID(_ context.Context, id int64) (event.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if ev, ok := repo.db.events[id]; ok {
		return repo.db.hydrateEvent(ev), nil
	}
	return event.Event{}, event.ErrNotFound
}

func (repo *eventRepository) QueryEvents(_ context.Context, filter *event.QueryFilter, page core.Page) ([]event.Event, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter == nil {
		filter = &event.QueryFilter{}
	}
	evts := make([]event.Event, 0)
	for _, ev := range repo.db.events {
		if !filter.Matches(ev) {
			continue
		}
		ev = repo.db.hydrateEvent(ev)
		if filter.Search != "" && !contains(filter.Search, ev.Title, ev.Description.String, ev.Location.String) {
			continue
		}
		evts = append(evts, ev)
	}
	sort.Slice(evts, func(i, j int) bool {
		if evts[i].StartTime.Equal(evts[j].StartTime) {
			return evts[i].ID < evts[j].ID
		}
		return evts[i].StartTime.Before(evts[j].StartTime)
	})
	start, end := page.Slice(len(evts))
	return evts[start:end], len(evts), nil
}

func (repo *eventRepository) UpdateEvent(_ context.Context, ev event.Event) (event.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cur, ok := repo.db.events[ev.ID]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	if err := repo.checkEvent(ev); err != nil {
		return event.Event{}, err
	}
	ev.State = cur.State // only RetireEvent changes the state
	ev.CreatedBy, ev.CreatedAt = cur.CreatedBy, cur.CreatedAt
	repo.db.events[ev.ID] = storedEvent(ev)
	return repo.db.hydrateEvent(ev), nil
}

func (repo *eventRepository) RetireEvent(_ context.Context, id int64, at time.Time) (event.Event, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ev, ok := repo.db.events[id]
	if !ok {
		return event.Event{}, false, event.ErrNotFound
	}
	if !ev.IsActive() {
		return repo.db.hydrateEvent(ev), false, nil
	}
	ev.State = event.StateRetired
	ev.UpdatedAt = at
	repo.db.events[id] = ev
	return repo.db.hydrateEvent(ev), true, nil
}
