package di

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/mulespace/apps/api/echo"
	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/analytics"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/notification"
	"github.com/trezcool/mulespace/core/user"
	cachesvc "github.com/trezcool/mulespace/services/cache"
	emailsvc "github.com/trezcool/mulespace/services/email"
	fliersvc "github.com/trezcool/mulespace/services/flier"
	logsvc "github.com/trezcool/mulespace/services/logger"
	qrsvc "github.com/trezcool/mulespace/services/qrcode"
	"github.com/trezcool/mulespace/storage/database"
	inmemdb "github.com/trezcool/mulespace/storage/database/inmem"
	sqlxrepos "github.com/trezcool/mulespace/storage/database/sqlx"
)

// memoryEngine keeps every record in process; nothing survives a restart.
const memoryEngine = "memory"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	Repositories struct {
		dig.Out
		Users         user.Repository
		Departments   department.Repository
		Events        event.Repository
		Attendances   attendance.Repository
		Notifications notification.Repository
		Analytics     analytics.Repository
	}

	// Cleanup collects the close functions of the resources opened by the container.
	Cleanup struct {
		funcs []func() error
	}

	// ShutdownChan receives OS signals and internal shutdown requests.
	ShutdownChan chan os.Signal
)

func (c *Cleanup) add(f func() error) {
	c.funcs = append(c.funcs, f)
}

// Run closes the resources in reverse order of opening.
func (c *Cleanup) Run() error {
	var first error
	for i := len(c.funcs) - 1; i >= 0; i-- {
		if err := c.funcs[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(os.Stdout, "API", conf), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(os.Stdout, "DB", conf), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam, cleanup *Cleanup) Repositories {
	if conf.Database.Engine == memoryEngine {
		loggerParam.Logger.Warn("using the in-memory database: data will be lost on shutdown")
		db := inmemdb.Open()
		return Repositories{
			Users:         inmemdb.NewUserRepository(db),
			Departments:   inmemdb.NewDepartmentRepository(db),
			Events:        inmemdb.NewEventRepository(db),
			Attendances:   inmemdb.NewAttendanceRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
			Analytics:     inmemdb.NewAnalyticsRepository(db),
		}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db.DB); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	cleanup.add(db.Close)

	return Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Departments:   sqlxrepos.NewDepartmentRepository(db),
		Events:        sqlxrepos.NewEventRepository(db),
		Attendances:   sqlxrepos.NewAttendanceRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		Analytics:     sqlxrepos.NewAnalyticsRepository(db),
	}
}

// newCache connects to redis when configured and falls back to an in-process cache.
func newCache(conf *core.Config, logger core.Logger, cleanup *Cleanup) core.Cache {
	if conf.Redis.URL == "" {
		return cachesvc.NewMemoryCache()
	}
	cache, closeFunc, err := cachesvc.NewRedisCache(context.Background(), conf.Redis.URL)
	if err != nil {
		logger.Error(fmt.Sprintf("redis unavailable, caching in memory: %v", err), err)
		return cachesvc.NewMemoryCache()
	}
	cleanup.add(closeFunc)
	return cache
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newUserService(repo user.Repository, depts department.Service, mailSvc core.EmailService, conf *core.Config) user.Service {
	return user.NewService(repo, depts, mailSvc, conf)
}

func newAttendanceService(
	repo attendance.Repository,
	events event.Repository,
	usrSvc user.Service,
	notifSvc notification.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) attendance.Service {
	return attendance.NewService(attendance.Deps{
		Repo:     repo,
		Events:   events,
		Users:    usrSvc,
		Notifier: notifSvc,
		MailSvc:  mailSvc,
		Logger:   logger,
	})
}

func newEventService(
	repo event.Repository,
	depts department.Service,
	qr *qrsvc.Generator,
	fliers *fliersvc.Store,
	attSvc attendance.Service,
	logger core.Logger,
) event.Service {
	return event.NewService(event.Deps{
		Repo:     repo,
		Depts:    depts,
		QR:       qr,
		Fliers:   fliers,
		Listener: attSvc,
		Logger:   logger,
	})
}

func newAnalyticsService(repo analytics.Repository, cache core.Cache, conf *core.Config, logger core.Logger) analytics.Service {
	return analytics.NewService(repo, cache, conf.Redis.AnalyticsTTL, logger)
}

func newShutdownChan() ShutdownChan {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	return shutdown
}

type serverParams struct {
	dig.In

	Conf            *core.Config
	Logger          core.Logger
	Validate        *validator.Validate
	Translator      ut.Translator
	Shutdown        ShutdownChan
	UserSvc         user.Service
	DepartmentSvc   department.Service
	EventSvc        event.Service
	AttendanceSvc   attendance.Service
	NotificationSvc notification.Service
	AnalyticsSvc    analytics.Service
	QR              *qrsvc.Generator
}

func newServer(p serverParams) (echoapi.Server, error) {
	return echoapi.NewServer(
		p.Conf.Server.Address,
		func() {
			select {
			case p.Shutdown <- syscall.SIGTERM:
			default: // a shutdown is already pending
			}
		},
		&echoapi.Deps{
			Conf:            p.Conf,
			Logger:          p.Logger,
			Validate:        p.Validate,
			Translator:      p.Translator,
			UserSvc:         p.UserSvc,
			DepartmentSvc:   p.DepartmentSvc,
			EventSvc:        p.EventSvc,
			AttendanceSvc:   p.AttendanceSvc,
			NotificationSvc: p.NotificationSvc,
			AnalyticsSvc:    p.AnalyticsSvc,
			QR:              p.QR,
		},
	)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(func() *Cleanup { return new(Cleanup) }))
	must(c.Provide(newShutdownChan))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newCache))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(qrsvc.NewGenerator))
	must(c.Provide(fliersvc.NewStore))

	must(c.Provide(department.NewService))
	must(c.Provide(newUserService))
	must(c.Provide(notification.NewService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newEventService))
	must(c.Provide(newAnalyticsService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
