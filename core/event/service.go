package event

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
)

const (
	defaultUpcomingDays = 7
	maxUpcomingDays     = 90
)

var (
	ErrNotFound = errors.New("event not found")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, ev Event) (Event, error)
		// GetEventByID returns the event with its department & creator names and its attendance count.
		GetEventByID(ctx context.Context, id int64) (Event, error)
		// QueryEvents returns the requested page of events matching the filter, ordered by start time, and the total count.
		QueryEvents(ctx context.Context, filter *QueryFilter, page core.Page) ([]Event, int, error)
		UpdateEvent(ctx context.Context, ev Event) (Event, error)
		// RetireEvent marks the event retired; it reports false when it already was.
		RetireEvent(ctx context.Context, id int64, at time.Time) (Event, bool, error)
	}

	DepartmentChecker interface {
		Exists(ctx context.Context, id int64) (bool, error)
	}

	// QRGenerator renders the check-in QR code of an event and returns its public path.
	QRGenerator interface {
		Generate(eventID int64) (string, error)
	}

	// FlierStore stores an uploaded flier image and returns its public path.
	FlierStore interface {
		Save(eventID int64, r io.Reader) (string, error)
	}

	// RetirementListener is told about every event that transitions to retired.
	RetirementListener interface {
		EventRetired(ctx context.Context, ev Event)
	}

	Service interface {
		Create(ctx context.Context, ne NewEvent, creatorID int64) (Event, error)
		GetByID(ctx context.Context, id int64) (Event, error)
		Query(ctx context.Context, filter *QueryFilter, page core.Page) ([]Event, int, error)
		Update(ctx context.Context, id int64, ue UpdateEvent) (Event, error)
		Retire(ctx context.Context, id int64) (Event, error)
		SetFlier(ctx context.Context, id int64, r io.Reader) (Event, error)
		Calendar(ctx context.Context, from, to time.Time, deptID int64) ([]CalendarEntry, error)
		Conflicts(ctx context.Context, ev Event) ([]Event, error)
		Upcoming(ctx context.Context, days int) ([]Event, error)
	}

	Deps struct {
		Repo     Repository
		Depts    DepartmentChecker
		QR       QRGenerator
		Fliers   FlierStore
		Listener RetirementListener
		Logger   core.Logger
	}

	service struct {
		Deps
	}
)

var _ Service = (*service)(nil)

func NewService(deps Deps) Service {
	return &service{Deps: deps}
}

func (svc *service) Create(ctx context.Context, ne NewEvent, creatorID int64) (Event, error) {
	if err := validateCapacity(ne.Capacity); err != nil {
		return Event{}, err
	}
	if err := svc.checkDepartment(ctx, ne.DepartmentID); err != nil {
		return Event{}, err
	}

	now := NowFunc().UTC()
	ev, err := svc.Repo.CreateEvent(ctx, Event{
		Title:        ne.Title,
		Description:  core.NullString(ne.Description),
		Location:     core.NullString(ne.Location),
		StartTime:    ne.StartTime.UTC(),
		EndTime:      ne.EndTime.UTC(),
		Capacity:     ne.Capacity,
		DepartmentID: ne.DepartmentID,
		CreatedBy:    creatorID,
		State:        StateActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Event{}, errors.Wrap(err, "creating event")
	}

	// the QR code is best-effort: the event exists even if it cannot be rendered
	if svc.QR != nil {
		qrPath, err := svc.QR.Generate(ev.ID)
		if err != nil {
			svc.logError("generating QR code", err, ev.ID)
			return ev, nil
		}
		ev.QRCodePath.SetValid(qrPath)
		if ev, err = svc.Repo.UpdateEvent(ctx, ev); err != nil {
			return Event{}, errors.Wrap(err, "saving QR code path")
		}
	}
	return ev, nil
}

func (svc *service) checkDepartment(ctx context.Context, id int64) error {
	if svc.Depts == nil {
		return nil
	}
	exists, err := svc.Depts.Exists(ctx, id)
	if err != nil {
		return errors.Wrap(err, "checking department")
	}
	if !exists {
		return core.NewFieldError("department_id", "department not found")
	}
	return nil
}

func (svc *service) GetByID(ctx context.Context, id int64) (Event, error) {
	return svc.Repo.GetEventByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, page core.Page) ([]Event, int, error) {
	if filter == nil {
		filter = &QueryFilter{}
	}
	filter.Clean()
	return svc.Repo.QueryEvents(ctx, filter, page)
}

func (svc *service) Update(ctx context.Context, id int64, ue UpdateEvent) (Event, error) {
	ev, err := svc.Repo.GetEventByID(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if ue.DepartmentID != nil && *ue.DepartmentID != ev.DepartmentID {
		if err = svc.checkDepartment(ctx, *ue.DepartmentID); err != nil {
			return Event{}, err
		}
	}
	if ev, err = ue.apply(ev); err != nil {
		return Event{}, err
	}
	ev.UpdatedAt = NowFunc().UTC()
	return svc.Repo.UpdateEvent(ctx, ev)
}

// Retire is idempotent; attendees are notified on the first transition only.
func (svc *service) Retire(ctx context.Context, id int64) (Event, error) {
	ev, changed, err := svc.Repo.RetireEvent(ctx, id, NowFunc().UTC())
	if err != nil {
		return Event{}, err
	}
	if changed && svc.Listener != nil {
		svc.Listener.EventRetired(ctx, ev)
	}
	return ev, nil
}

func (svc *service) SetFlier(ctx context.Context, id int64, r io.Reader) (Event, error) {
	ev, err := svc.Repo.GetEventByID(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if svc.Fliers == nil {
		return Event{}, errors.New("flier storage is not configured")
	}
	fp, err := svc.Fliers.Save(ev.ID, r)
	if err != nil {
		return Event{}, err
	}
	ev.FlierPath.SetValid(fp)
	ev.UpdatedAt = NowFunc().UTC()
	return svc.Repo.UpdateEvent(ctx, ev)
}

// Conflicts returns the other active events overlapping ev, limited to ev's department when it has one.
func (svc *service) Conflicts(ctx context.Context, ev Event) ([]Event, error) {
	filter := &QueryFilter{
		From:      ev.StartTime.UTC(),
		To:        ev.EndTime.UTC(),
		Overlap:   true,
		ExcludeID: ev.ID,
	}
	if ev.DepartmentID > 0 {
		filter.DepartmentID = null.Int64From(ev.DepartmentID)
	}
	evts, _, err := svc.Repo.QueryEvents(ctx, filter, core.Page{})
	return evts, err
}

// Upcoming returns the active events starting within the next `days` days (7 by default, at most 90).
func (svc *service) Upcoming(ctx context.Context, days int) ([]Event, error) {
	if days <= 0 {
		days = defaultUpcomingDays
	} else if days > maxUpcomingDays {
		days = maxUpcomingDays
	}
	now := NowFunc().UTC()
	evts, _, err := svc.Repo.QueryEvents(ctx, &QueryFilter{
		From: now,
		To:   now.AddDate(0, 0, days),
	}, core.Page{})
	return evts, err
}

func (svc *service) logError(msg string, err error, eventID int64) {
	if svc.Logger != nil {
		svc.Logger.Error(msg, err, map[string]interface{}{"event_id": eventID})
	}
}
