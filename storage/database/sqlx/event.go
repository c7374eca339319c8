package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/event"
)

const (
	eventColumns = `e.id, e.title, e.description, e.location, e.start_time, e.end_time, e.max_capacity,
		e.department_id, d.name AS department_name, e.created_by, (cu.first_name || ' ' || cu.last_name) AS creator_name,
		e.qr_code_path, e.flier_path, e.state, e.created_at, e.updated_at,
		(SELECT COUNT(*) FROM attendance a WHERE a.event_id = e.id) AS attendance_count`
	eventFrom = `FROM events e JOIN departments d ON d.id = e.department_id JOIN users cu ON cu.id = e.created_by`
)

type eventRepository struct {
	db *sqlx.DB
}

var _ event.Repository = (*eventRepository)(nil)

func NewEventRepository(db *sqlx.DB) event.Repository {
	return &eventRepository{db: db}
}

func (repo eventRepository) trapConstraintErr(err error, msg string) error {
	if pqErr, ok := pqError(err); ok {
		switch {
		case pqErr.Code == pqForeignKeyViolation && pqErr.Constraint == "events_department_id_fkey":
			return core.NewFieldError("department_id", "department not found")
		case pqErr.Code == pqCheckViolation && pqErr.Constraint == "events_time_range_check":
			return core.NewFieldError("end_time", "end_time must be after start_time")
		case pqErr.Code == pqCheckViolation && pqErr.Constraint == "events_max_capacity_check":
			return core.NewFieldError("max_capacity", "max_capacity must be 0 or greater")
		}
	}
	return errors.Wrap(err, msg)
}

func (repo eventRepository) CreateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	const q = `INSERT INTO events (title, description, location, start_time, end_time, max_capacity, department_id,
			created_by, qr_code_path, flier_path, state, created_at, updated_at)
		VALUES (:title, :description, :location, :start_time, :end_time, :max_capacity, :department_id,
			:created_by, :qr_code_path, :flier_path, :state, :created_at, :updated_at)
		RETURNING id`
	query, args, err := repo.db.BindNamed(q, ev)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "binding event")
	}
	if err = repo.db.GetContext(ctx, &ev.ID, query, args...); err != nil {
		return event.Event{}, repo.trapConstraintErr(err, "inserting event")
	}
	return repo.GetEventByID(ctx, ev.ID)
}

func (repo eventRepository) GetEventByID(ctx context.Context, id int64) (event.Event, error) {
	var ev event.Event
	if err := repo.db.GetContext(ctx, &ev, "SELECT "+eventColumns+" "+eventFrom+" WHERE e.id = $1", id); err != nil {
		return event.Event{}, trapNoRowsErr(err, event.ErrNotFound, "selecting event")
	}
	return ev, nil
}

func (repo eventRepository) QueryEvents(ctx context.Context, filter *event.QueryFilter, page core.Page) ([]event.Event, int, error) {
	var w where
	if filter == nil {
		filter = &event.QueryFilter{}
	}
	if !filter.IncludeRetired {
		w.add("e.state = ?", event.StateActive)
	}
	if filter.DepartmentID.Valid {
		w.add("e.department_id = ?", filter.DepartmentID.Int64)
	}
	if filter.Search != "" {
		p := searchPattern(filter.Search)
		w.add("(e.title ILIKE ? OR e.description ILIKE ? OR e.location ILIKE ?)", p, p, p)
	}
	if filter.ExcludeID != 0 {
		w.add("e.id <> ?", filter.ExcludeID)
	}
	if filter.Overlap {
		if !filter.To.IsZero() {
			w.add("e.start_time < ?", filter.To)
		}
		if !filter.From.IsZero() {
			w.add("e.end_time > ?", filter.From)
		}
	} else {
		if !filter.From.IsZero() {
			w.add("e.start_time >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			w.add("e.start_time <= ?", filter.To)
		}
	}

	evts := make([]event.Event, 0)
	total, err := selectPage(ctx, repo.db, &evts, eventColumns, eventFrom, w, " ORDER BY e.start_time ASC, e.id ASC", page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying events")
	}
	return evts, total, nil
}

func (repo eventRepository) UpdateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	const q = `UPDATE events SET title = :title, description = :description, location = :location,
		start_time = :start_time, end_time = :end_time, max_capacity = :max_capacity, department_id = :department_id,
		qr_code_path = :qr_code_path, flier_path = :flier_path, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, ev)
	if err != nil {
		return event.Event{}, repo.trapConstraintErr(err, "updating event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return repo.GetEventByID(ctx, ev.ID)
}

func (repo eventRepository) RetireEvent(ctx context.Context, id int64, at time.Time) (event.Event, bool, error) {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE events SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4",
		event.StateRetired, at, id, event.StateActive)
	if err != nil {
		return event.Event{}, false, errors.Wrap(err, "retiring event")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return event.Event{}, false, errors.Wrap(err, "retiring event")
	}
	ev, err := repo.GetEventByID(ctx, id)
	if err != nil {
		return event.Event{}, false, err
	}
	return ev, n > 0, nil
}
