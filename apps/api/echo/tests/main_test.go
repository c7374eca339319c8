package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	. "github.com/trezcool/mulespace/apps/api/echo"
	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/analytics"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/notification"
	"github.com/trezcool/mulespace/core/user"
	"github.com/trezcool/mulespace/services/email"
	"github.com/trezcool/mulespace/services/flier"
	"github.com/trezcool/mulespace/services/logger"
	"github.com/trezcool/mulespace/services/qrcode"
	"github.com/trezcool/mulespace/storage/database/inmem"
	"github.com/trezcool/mulespace/tests"
)

var (
	ctx = context.Background()

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

// testApp is a server backed by the in-memory storage, with a department and one user per role.
type testApp struct {
	conf     *core.Config
	app      Server
	usrRepo  user.Repository
	deptRepo department.Repository
	evRepo   event.Repository
	notifSvc notification.Service

	dept      department.Department
	otherDept department.Department
	admin     user.User
	deptAdmin user.User
	student   user.User
}

func setup(t *testing.T) testApp {
	conf := &core.Config{
		AppName:                   "MuleSpace",
		SecretKey:                 "test-secret-key",
		TestMode:                  true,
		FrontendBaseURL:           "http://campus.test",
		DefaultFromEmail:          mail.Address{Name: "MuleSpace", Address: "noreply@campus.test"},
		ItemsPerPage:              20,
		PasswordResetTimeoutDelta: 72 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Media: core.MediaConfig{
			Root:          t.TempDir(),
			URL:           "/media",
			QRCodeDir:     "qrcodes",
			FlierDir:      "fliers",
			FlierMaxWidth: 400,
		},
	}
	core.ParseEmailTemplates(conf, nil)
	emailsvc.ResetSentMessages()

	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(io.Discard, "API", conf), conf)
	logger.Enable(false)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	// set up DB & repos
	db := inmemdb.Open()
	ta := testApp{
		conf:     conf,
		usrRepo:  inmemdb.NewUserRepository(db),
		deptRepo: inmemdb.NewDepartmentRepository(db),
		evRepo:   inmemdb.NewEventRepository(db),
	}

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	deptSvc := department.NewService(ta.deptRepo)
	usrSvc := user.NewService(ta.usrRepo, deptSvc, mailSvc, conf)
	ta.notifSvc = notification.NewService(inmemdb.NewNotificationRepository(db))
	attSvc := attendance.NewService(attendance.Deps{
		Repo:     inmemdb.NewAttendanceRepository(db),
		Events:   ta.evRepo,
		Users:    usrSvc,
		Notifier: ta.notifSvc,
		MailSvc:  mailSvc,
		Logger:   logger,
	})
	qr := qrsvc.NewGenerator(conf)
	evSvc := event.NewService(event.Deps{
		Repo:     ta.evRepo,
		Depts:    deptSvc,
		QR:       qr,
		Fliers:   fliersvc.NewStore(conf),
		Listener: attSvc,
		Logger:   logger,
	})
	// no cache: every request sees fresh numbers
	analyticsSvc := analytics.NewService(inmemdb.NewAnalyticsRepository(db), nil, 0, logger)

	// set up server
	app, err := NewServer(
		"",  /* addr */
		nil, /* shutdown */
		&Deps{
			Conf:            conf,
			Logger:          logger,
			Validate:        validate,
			Translator:      translator,
			UserSvc:         usrSvc,
			DepartmentSvc:   deptSvc,
			EventSvc:        evSvc,
			AttendanceSvc:   attSvc,
			NotificationSvc: ta.notifSvc,
			AnalyticsSvc:    analyticsSvc,
			QR:              qr,
		},
	)
	if err != nil {
		t.Fatalf("NewServer(): %v", err)
	}
	ta.app = app

	// fixtures
	ta.dept = testutil.CreateDepartment(t, ta.deptRepo, "Computer Science")
	ta.otherDept = testutil.CreateDepartment(t, ta.deptRepo, "Mathematics")
	ta.admin = testutil.CreateUser(t, ta.usrRepo, "Ada", "Admin", "ada", "ada@campus.test", user.RoleAdmin, null.Int64{}, true)
	ta.deptAdmin = testutil.CreateUser(
		t, ta.usrRepo, "Dan", "Dept", "dan", "dan@campus.test", user.RoleDepartmentAdmin, null.Int64From(ta.dept.ID), true,
	)
	ta.student = ta.newStudent(t, "sam")
	return ta
}

func (ta testApp) newStudent(t *testing.T, uname string) user.User {
	return testutil.CreateUser(
		t, ta.usrRepo, "Stu", uname, uname, uname+"@campus.test", user.RoleStudent, null.Int64From(ta.dept.ID), true,
	)
}

// newEvent creates an active event of `deptID` starting in two days.
func (ta testApp) newEvent(t *testing.T, title string, deptID int64, capacity null.Int64) event.Event {
	return testutil.CreateEvent(t, ta.evRepo, title, deptID, ta.admin.ID, capacity, time.Now().Add(48*time.Hour))
}

func (ta testApp) token(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr, ta.conf)
	token, err := GenerateToken(claims, ta.conf)
	if err != nil {
		t.Fatalf("token(): %v", err)
	}
	return token
}

// serve runs one request through the server.
func (ta testApp) serve(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	ta.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal(): %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, ta testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := ta.serve(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
