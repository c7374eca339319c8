package attendance_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/notification"
	"github.com/trezcool/mulespace/core/user"
	"github.com/trezcool/mulespace/services/email"
	"github.com/trezcool/mulespace/storage/database/inmem"
	"github.com/trezcool/mulespace/tests"
)

type fixture struct {
	db       *inmemdb.DB
	usrRepo  user.Repository
	evRepo   event.Repository
	attSvc   attendance.Service
	evSvc    event.Service
	notifSvc notification.Service
	deptID   int64
	admin    user.User
}

func setup(t *testing.T) fixture {
	conf := &core.Config{
		AppName:          "MuleSpace",
		FrontendBaseURL:  "http://campus.test",
		DefaultFromEmail: mail.Address{Name: "MuleSpace", Address: "noreply@campus.test"},
		TestMode:         true,
	}
	core.ParseEmailTemplates(conf, nil)
	emailsvc.ResetSentMessages()

	db := inmemdb.Open()
	f := fixture{
		db:      db,
		usrRepo: inmemdb.NewUserRepository(db),
		evRepo:  inmemdb.NewEventRepository(db),
	}
	deptRepo := inmemdb.NewDepartmentRepository(db)
	f.deptID = testutil.CreateDepartment(t, deptRepo, "Computer Science").ID
	f.admin = testutil.CreateUser(t, f.usrRepo, "Ada", "Admin", "ada", "ada@campus.test", user.RoleAdmin, null.Int64{}, true)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(f.usrRepo, nil, mailSvc, conf)
	f.notifSvc = notification.NewService(inmemdb.NewNotificationRepository(db))
	f.attSvc = attendance.NewService(attendance.Deps{
		Repo:     inmemdb.NewAttendanceRepository(db),
		Events:   f.evRepo,
		Users:    usrSvc,
		Notifier: f.notifSvc,
		MailSvc:  mailSvc,
	})
	f.evSvc = event.NewService(event.Deps{Repo: f.evRepo, Listener: f.attSvc})
	return f
}

func (f fixture) student(t *testing.T, uname string) user.User {
	return testutil.CreateUser(t, f.usrRepo, "Stu", uname, uname, uname+"@campus.test", user.RoleStudent, null.Int64From(f.deptID), true)
}

func (f fixture) event(t *testing.T, capacity null.Int64) event.Event {
	return testutil.CreateEvent(t, f.evRepo, "Hackathon", f.deptID, f.admin.ID, capacity, time.Now().Add(48*time.Hour))
}

func TestAdmission_Check(t *testing.T) {
	active := event.Event{State: event.StateActive, Capacity: null.Int64From(2)}
	retired := event.Event{State: event.StateRetired, Capacity: null.Int64From(2)}
	unlimited := event.Event{State: event.StateActive}

	tests := []struct {
		name string
		adm  attendance.Admission
		want error
	}{
		{name: "admitted", adm: attendance.Admission{Event: active, Count: 1}},
		{name: "unlimited capacity", adm: attendance.Admission{Event: unlimited, Count: 10000}},
		{name: "capacity reached", adm: attendance.Admission{Event: active, Count: 2}, want: attendance.ErrCapacityExceeded},
		{name: "zero capacity", adm: attendance.Admission{Event: event.Event{State: event.StateActive, Capacity: null.Int64From(0)}}, want: attendance.ErrCapacityExceeded},
		{name: "duplicate wins over capacity", adm: attendance.Admission{Event: active, Registered: true, Count: 2}, want: attendance.ErrDuplicateRegistration},
		{name: "inactive wins over everything", adm: attendance.Admission{Event: retired, Registered: true, Count: 5}, want: attendance.ErrEventInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.adm.Check())
		})
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ev := f.event(t, null.Int64From(1))
	a, b, c := f.student(t, "alice"), f.student(t, "bob"), f.student(t, "carol")

	att, err := f.attSvc.Register(ctx, ev.ID, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, attendance.MethodQRCode, att.Method)
	assert.Equal(t, "alice", att.Username)

	_, err = f.attSvc.Register(ctx, ev.ID, a.ID, attendance.MethodQRCode)
	assert.Equal(t, attendance.ErrDuplicateRegistration, errors.Cause(err))

	_, err = f.attSvc.Register(ctx, ev.ID, b.ID, attendance.MethodQRCode)
	assert.Equal(t, attendance.ErrCapacityExceeded, errors.Cause(err))

	_, err = f.evSvc.Retire(ctx, ev.ID)
	require.NoError(t, err)
	_, err = f.attSvc.Register(ctx, ev.ID, c.ID, attendance.MethodQRCode)
	assert.Equal(t, attendance.ErrEventInactive, errors.Cause(err))

	_, err = f.attSvc.Register(ctx, 999, a.ID, attendance.MethodQRCode)
	assert.Equal(t, event.ErrNotFound, errors.Cause(err))

	atts, err := f.attSvc.Attendees(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, atts, 1)

	t.Run("confirmation email", func(t *testing.T) {
		msg, ok := emailsvc.LastSentMessage()
		require.True(t, ok)
		assert.Equal(t, "Confirmed: You're registered for Hackathon", msg.Subject)
		assert.Equal(t, "alice@campus.test", msg.To[0].Address)
		assert.Contains(t, msg.TextContent, "Hi Stu,")
		assert.Contains(t, msg.TextContent, "Rashid Auditorium")
	})

	t.Run("notifications", func(t *testing.T) {
		notifs, total, err := f.notifSvc.Query(ctx, notification.QueryFilter{UserID: a.ID}, core.Page{})
		require.NoError(t, err)
		require.Equal(t, 2, total)
		// newest first: the retirement notice, then the confirmation
		assert.Equal(t, notification.TypeUpdate, notifs[0].Type)
		assert.Equal(t, "Event cancelled: Hackathon", notifs[0].Title)
		assert.Equal(t, notification.TypeEventAlert, notifs[1].Type)
		assert.Equal(t, "Registration confirmed", notifs[1].Title)
	})
}

func TestService_RegisterUnlimitedCapacity(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ev := f.event(t, null.Int64{})

	for _, uname := range []string{"u1", "u2", "u3", "u4", "u5"} {
		_, err := f.attSvc.Register(ctx, ev.ID, f.student(t, uname).ID, attendance.MethodSelfCheckIn)
		require.NoError(t, err)
	}
	st, err := f.attSvc.Status(ctx, ev.ID, f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, st.RegisteredCount)
	assert.False(t, st.SpotsLeft.Valid)
	assert.False(t, st.Registered)
}

func TestService_RegisterConcurrently(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	const capacity = 3
	ev := f.event(t, null.Int64From(capacity))

	users := make([]user.User, 0, 20)
	for i := 0; i < 20; i++ {
		users = append(users, f.student(t, "student"+string(rune('a'+i))))
	}

	var (
		wg                 sync.WaitGroup
		mu                 sync.Mutex
		admitted, rejected int
	)
	for _, usr := range users {
		usr := usr
		wg.Add(1)
		go func() {
			defer wg.Done()
			// the same user twice: at most one row per (event, user)
			for i := 0; i < 2; i++ {
				_, err := f.attSvc.Register(ctx, ev.ID, usr.ID, attendance.MethodQRCode)
				mu.Lock()
				switch errors.Cause(err) {
				case nil:
					admitted++
				case attendance.ErrCapacityExceeded, attendance.ErrDuplicateRegistration:
					rejected++
				default:
					t.Errorf("Register(): unexpected error %v", err)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted)
	assert.Equal(t, 2*len(users)-capacity, rejected)
	atts, err := f.attSvc.Attendees(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, atts, capacity)
}

func TestService_BulkCheckIn(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ev := f.event(t, null.Int64From(2))
	a, b, c := f.student(t, "alice"), f.student(t, "bob"), f.student(t, "carol")

	_, err := f.attSvc.Register(ctx, ev.ID, a.ID, attendance.MethodQRCode)
	require.NoError(t, err)

	res, err := f.attSvc.BulkCheckIn(ctx, ev.ID, []int64{a.ID, b.ID, 404, c.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, res.Success)
	assert.Equal(t, []attendance.BulkError{
		{UserID: a.ID, Error: attendance.ErrDuplicateRegistration.Error()},
		{UserID: 404, Error: user.ErrNotFound.Error()},
		{UserID: c.ID, Error: attendance.ErrCapacityExceeded.Error()},
	}, res.Errors)

	att, err := f.attSvc.Status(ctx, ev.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, att.Attendance)
	assert.Equal(t, attendance.MethodManual, att.Attendance.Method)

	_, err = f.attSvc.BulkCheckIn(ctx, 999, []int64{a.ID})
	assert.Equal(t, event.ErrNotFound, errors.Cause(err))
}

func TestService_StatusAndDelete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ev := f.event(t, null.Int64From(10))
	a := f.student(t, "alice")

	att, err := f.attSvc.Register(ctx, ev.ID, a.ID, attendance.MethodQRCode)
	require.NoError(t, err)

	st, err := f.attSvc.Status(ctx, ev.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, st.Registered)
	assert.True(t, st.IsActive)
	assert.Equal(t, null.Int64From(9), st.SpotsLeft)

	mine, total, err := f.attSvc.QueryByUser(ctx, a.ID, core.Page{Number: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NotNil(t, mine[0].Event)
	assert.Equal(t, ev.ID, mine[0].Event.ID)

	require.NoError(t, f.attSvc.Delete(ctx, att.ID))
	assert.Equal(t, attendance.ErrNotFound, errors.Cause(f.attSvc.Delete(ctx, att.ID)))

	// a deleted registration frees the spot and allows registering again
	_, err = f.attSvc.Register(ctx, ev.ID, a.ID, attendance.MethodQRCode)
	assert.NoError(t, err)
}

func TestService_ExportCSV(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ev := f.event(t, null.Int64{})
	a := f.student(t, "alice")
	att, err := f.attSvc.Register(ctx, ev.ID, a.ID, attendance.MethodManual)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.attSvc.ExportCSV(ctx, ev.ID, &buf))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"attendance_id", "user_id", "username", "name", "email", "checked_in_at", "check_in_method"}, recs[0])
	assert.Equal(t, "alice", recs[1][2])
	assert.Equal(t, "Stu alice", recs[1][3])
	assert.Equal(t, att.CheckedInAt.UTC().Format(time.RFC3339), recs[1][5])
	assert.Equal(t, "manual", recs[1][6])
}
