package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/analytics"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/notification"
	"github.com/trezcool/mulespace/core/user"
)

type (
	// QRRenderer renders the check-in QR code of an event as a PNG.
	QRRenderer interface {
		PNG(eventID int64) ([]byte, error)
	}

	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc         user.Service
		DepartmentSvc   department.Service
		EventSvc        event.Service
		AttendanceSvc   attendance.Service
		NotificationSvc notification.Service
		AnalyticsSvc    analytics.Service
		QR              QRRenderer
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		address        string
		signalShutdown func()
		deps           *Deps
		app            *echo.Echo
	}
)

var _ Server = (*server)(nil)

// NewServer builds the API & views server. signalShutdown is called whenever a shutdown error reaches the error handler.
// It fails when the view templates cannot be parsed.
func NewServer(address string, signalShutdown func(), deps *Deps) (Server, error) {
	if signalShutdown == nil {
		signalShutdown = func() {}
	}
	s := &server{
		address:        address,
		signalShutdown: signalShutdown,
		deps:           deps,
		app:            echo.New(),
	}
	if err := s.setup(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) setup() error {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(requestIDMiddleware())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode
	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	auth := newAuthenticator(conf, s.deps.UserSvc)
	jwt := auth.required()
	api := s.app.Group("/api", auth.optional())

	registerAuthAPI(api.Group("/auth"), jwt, auth, s.deps)
	registerEventAPI(api.Group("/events"), jwt, s.deps)
	registerCalendarAPI(api.Group("/calendar"), jwt, s.deps)
	registerAttendanceAPI(api.Group("/attendance"), jwt, s.deps)
	registerNotificationAPI(api.Group("/notifications"), jwt, s.deps)
	registerAdminAPI(api.Group("/admin"), jwt, s.deps)

	s.app.Static(conf.Media.URL, conf.Media.Root)
	return registerViews(s.app, auth, s.deps)
}

func (s *server) Start() error {
	return s.app.Start(s.address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
