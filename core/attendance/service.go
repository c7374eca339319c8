package attendance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/notification"
	"github.com/trezcool/mulespace/core/user"
)

var (
	ErrNotFound              = errors.New("attendance record not found")
	ErrEventInactive         = errors.New("event is no longer active")
	ErrDuplicateRegistration = errors.New("already registered for this event")
	ErrCapacityExceeded      = errors.New("event is at full capacity")

	NowFunc = time.Now // mockable

	csvHeader = []string{"attendance_id", "user_id", "username", "name", "email", "checked_in_at", "check_in_method"}
)

type (
	Repository interface {
		// Admit atomically loads the event, evaluates the Admission and inserts att.
		// It returns event.ErrNotFound, user.ErrNotFound or the first failing admission error.
		Admit(ctx context.Context, att Attendance) (Attendance, error)
		GetAttendanceByID(ctx context.Context, id int64) (Attendance, error)
		GetAttendance(ctx context.Context, eventID, userID int64) (Attendance, error)
		// QueryAttendance returns attendances with event & user details: by check-in time for an event,
		// newest first for a user.
		QueryAttendance(ctx context.Context, filter QueryFilter, page core.Page) ([]Attendance, int, error)
		DeleteAttendance(ctx context.Context, id int64) error
	}

	UserGetter interface {
		GetByID(ctx context.Context, id int64) (user.User, error)
	}

	Service interface {
		Register(ctx context.Context, eventID, userID int64, method Method) (Attendance, error)
		BulkCheckIn(ctx context.Context, eventID int64, userIDs []int64) (BulkResult, error)
		Status(ctx context.Context, eventID, userID int64) (Status, error)
		QueryByUser(ctx context.Context, userID int64, page core.Page) ([]Attendance, int, error)
		Attendees(ctx context.Context, eventID int64) ([]Attendance, error)
		GetByID(ctx context.Context, id int64) (Attendance, error)
		Delete(ctx context.Context, id int64) error
		ExportCSV(ctx context.Context, eventID int64, w io.Writer) error
		EventRetired(ctx context.Context, ev event.Event)
	}

	Deps struct {
		Repo     Repository
		Events   event.Repository
		Users    UserGetter
		Notifier notification.Service
		MailSvc  core.EmailService
		Logger   core.Logger
	}

	service struct {
		Deps
	}
)

var (
	_ Service                  = (*service)(nil)
	_ event.RetirementListener = (*service)(nil)
)

func NewService(deps Deps) Service {
	return &service{Deps: deps}
}

func (svc *service) Register(ctx context.Context, eventID, userID int64, method Method) (Attendance, error) {
	if method == "" {
		method = MethodQRCode
	}
	att, err := svc.Repo.Admit(ctx, Attendance{
		EventID:     eventID,
		UserID:      userID,
		CheckedInAt: NowFunc().UTC(),
		Method:      method,
	})
	if err != nil {
		return Attendance{}, err
	}
	svc.confirm(ctx, att)
	return att, nil
}

type registrationData struct {
	FirstName   string
	Title       string
	StartTime   time.Time
	EndTime     time.Time
	Location    string
	Department  string
	Description string
	EventID     int64
}

// confirm notifies the attendee in-app and by email. Failures are logged only.
func (svc *service) confirm(ctx context.Context, att Attendance) {
	ev, err := svc.Events.GetEventByID(ctx, att.EventID)
	if err != nil {
		svc.logError("loading event for confirmation", err, att)
		return
	}
	if svc.Notifier != nil {
		err = svc.Notifier.Notify(ctx, notification.Notification{
			UserID:  att.UserID,
			EventID: null.Int64From(ev.ID),
			Title:   "Registration confirmed",
			Message: fmt.Sprintf("You're registered for %s on %s.", ev.Title, ev.StartTime.Format("Jan 02, 2006 at 03:04 PM")),
			Type:    notification.TypeEventAlert,
		})
		if err != nil {
			svc.logError("notifying attendee", err, att)
		}
	}

	if svc.MailSvc == nil || svc.Users == nil {
		return
	}
	usr, err := svc.Users.GetByID(ctx, att.UserID)
	if err != nil {
		svc.logError("loading user for confirmation", err, att)
		return
	}
	loc := ev.Location.String
	if loc == "" {
		loc = "TBA"
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Confirmed: You're registered for " + ev.Title,
		TemplateName: "registration_confirmation",
		TemplateData: registrationData{
			FirstName:   usr.FirstName,
			Title:       ev.Title,
			StartTime:   ev.StartTime,
			EndTime:     ev.EndTime,
			Location:    loc,
			Department:  ev.DepartmentName,
			Description: ev.Description.String,
			EventID:     ev.ID,
		},
	})
}

// BulkCheckIn admits every user manually; per-user failures are reported, not returned.
func (svc *service) BulkCheckIn(ctx context.Context, eventID int64, userIDs []int64) (BulkResult, error) {
	if _, err := svc.Events.GetEventByID(ctx, eventID); err != nil {
		return BulkResult{}, err
	}

	res := BulkResult{Success: make([]int64, 0, len(userIDs)), Errors: make([]BulkError, 0)}
	for _, uid := range userIDs {
		_, err := svc.Repo.Admit(ctx, Attendance{
			EventID:     eventID,
			UserID:      uid,
			CheckedInAt: NowFunc().UTC(),
			Method:      MethodManual,
		})
		switch cause := errors.Cause(err); cause {
		case nil:
			res.Success = append(res.Success, uid)
		case user.ErrNotFound, ErrDuplicateRegistration, ErrCapacityExceeded, ErrEventInactive:
			res.Errors = append(res.Errors, BulkError{UserID: uid, Error: cause.Error()})
		default:
			return BulkResult{}, errors.Wrapf(err, "checking in user %d", uid)
		}
	}
	return res, nil
}

func (svc *service) Status(ctx context.Context, eventID, userID int64) (Status, error) {
	ev, err := svc.Events.GetEventByID(ctx, eventID)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		EventID:         ev.ID,
		RegisteredCount: ev.AttendanceCount,
		MaxCapacity:     ev.Capacity,
		SpotsLeft:       ev.SpotsLeft(),
		IsActive:        ev.IsActive(),
	}
	att, err := svc.Repo.GetAttendance(ctx, eventID, userID)
	switch errors.Cause(err) {
	case nil:
		st.Registered = true
		st.Attendance = &att
	case ErrNotFound:
	default:
		return Status{}, err
	}
	return st, nil
}

// QueryByUser returns the user's attendances, newest first, each with its event.
func (svc *service) QueryByUser(ctx context.Context, userID int64, page core.Page) ([]Attendance, int, error) {
	atts, total, err := svc.Repo.QueryAttendance(ctx, QueryFilter{UserID: userID}, page)
	if err != nil {
		return nil, 0, err
	}
	for i := range atts {
		ev, err := svc.Events.GetEventByID(ctx, atts[i].EventID)
		if err != nil {
			return nil, 0, errors.Wrap(err, "loading event")
		}
		atts[i].Event = &ev
	}
	return atts, total, nil
}

func (svc *service) Attendees(ctx context.Context, eventID int64) ([]Attendance, error) {
	if _, err := svc.Events.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	atts, _, err := svc.Repo.QueryAttendance(ctx, QueryFilter{EventID: eventID}, core.Page{})
	return atts, err
}

func (svc *service) GetByID(ctx context.Context, id int64) (Attendance, error) {
	return svc.Repo.GetAttendanceByID(ctx, id)
}

func (svc *service) Delete(ctx context.Context, id int64) error {
	return svc.Repo.DeleteAttendance(ctx, id)
}

// ExportCSV writes the attendees of an event as CSV.
func (svc *service) ExportCSV(ctx context.Context, eventID int64, w io.Writer) error {
	atts, err := svc.Attendees(ctx, eventID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err = cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing CSV header")
	}
	for _, att := range atts {
		rec := []string{
			strconv.FormatInt(att.ID, 10),
			strconv.FormatInt(att.UserID, 10),
			att.Username,
			att.UserName,
			att.UserEmail,
			att.CheckedInAt.UTC().Format(time.RFC3339),
			string(att.Method),
		}
		if err = cw.Write(rec); err != nil {
			return errors.Wrap(err, "writing CSV record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing CSV")
}

// EventRetired tells every attendee of a freshly retired event.
func (svc *service) EventRetired(ctx context.Context, ev event.Event) {
	if svc.Notifier == nil {
		return
	}
	atts, _, err := svc.Repo.QueryAttendance(ctx, QueryFilter{EventID: ev.ID}, core.Page{})
	if err != nil {
		svc.logError("loading attendees of retired event", err, Attendance{EventID: ev.ID})
		return
	}
	notifs := make([]notification.Notification, 0, len(atts))
	for _, att := range atts {
		notifs = append(notifs, notification.Notification{
			UserID:  att.UserID,
			EventID: null.Int64From(ev.ID),
			Title:   "Event cancelled: " + ev.Title,
			Message: fmt.Sprintf("%s scheduled for %s has been cancelled.", ev.Title, ev.StartTime.Format("Jan 02, 2006 at 03:04 PM")),
			Type:    notification.TypeUpdate,
		})
	}
	if err = svc.Notifier.Notify(ctx, notifs...); err != nil {
		svc.logError("notifying attendees of retired event", err, Attendance{EventID: ev.ID})
	}
}

func (svc *service) logError(msg string, err error, att Attendance) {
	if svc.Logger != nil {
		svc.Logger.Error(msg, err, map[string]interface{}{"event_id": att.EventID, "user_id": att.UserID})
	}
}
