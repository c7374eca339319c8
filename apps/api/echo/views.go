package echoapi

import (
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/access"
	"github.com/trezcool/mulespace/core/analytics"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/user"
	appfs "github.com/trezcool/mulespace/fs"
)

const viewTemplatesDir = "assets/templates/views"

var viewFuncs = template.FuncMap{
	"longDate":  func(t time.Time) string { return t.Format("Monday, January 02, 2006") },
	"clockTime": func(t time.Time) string { return t.Format("03:04 PM") },
}

// viewRenderer renders the pages embedded under viewTemplatesDir, each one within `_base.gohtml`.
type viewRenderer struct {
	templates map[string]*template.Template
}

var _ echo.Renderer = (*viewRenderer)(nil)

func newViewRenderer(fsys fs.FS, strict bool) (*viewRenderer, error) {
	fps, err := fs.Glob(fsys, path.Join(viewTemplatesDir, "*.gohtml"))
	if err != nil {
		return nil, err
	}

	r := &viewRenderer{templates: make(map[string]*template.Template, len(fps))}
	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		tmpl, err := template.New(fname).Funcs(viewFuncs).ParseFS(fsys, path.Join(viewTemplatesDir, "_base.gohtml"), fp)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", fp)
		}
		if strict {
			tmpl = tmpl.Option("missingkey=error")
		}
		r.templates[strings.TrimSuffix(fname, ".gohtml")] = tmpl
	}
	if len(r.templates) == 0 {
		return nil, errors.Errorf("no view templates under %s", viewTemplatesDir)
	}
	return r, nil
}

func (r *viewRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return errors.Errorf("view %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// viewPage is the data handed to every view.
type viewPage struct {
	AppName string
	Title   string
	User    *user.User
	Data    interface{}
}

type viewHandler struct {
	conf         *core.Config
	auth         *authenticator
	events       event.Service
	attendances  attendance.Service
	analytics    analytics.Service
	itemsPerPage int
}

func registerViews(e *echo.Echo, auth *authenticator, deps *Deps) error {
	renderer, err := newViewRenderer(appfs.FS, deps.Conf.Debug || deps.Conf.TestMode)
	if err != nil {
		return errors.Wrap(err, "parsing view templates")
	}
	e.Renderer = renderer

	h := viewHandler{
		conf:         deps.Conf,
		auth:         auth,
		events:       deps.EventSvc,
		attendances:  deps.AttendanceSvc,
		analytics:    deps.AnalyticsSvc,
		itemsPerPage: deps.Conf.ItemsPerPage,
	}

	// routes are registered one by one: a root Group would catch every unknown path
	opt := auth.optional()
	e.GET("/", h.home, opt)
	e.GET("/login", h.login, opt)
	e.GET("/logout", h.logout)
	e.GET("/register", h.register, opt)
	e.GET("/events", h.eventList, opt)
	e.GET("/events/:id", h.eventDetail, opt)

	// login required
	lr := loginRequiredMiddleware()
	e.GET("/calendar", h.calendar, opt, lr)
	e.GET("/my-events", h.myEvents, opt, lr)
	e.GET("/admin", h.admin, opt, lr)
	e.GET("/student", h.student, opt, lr)
	e.GET("/check-in", h.checkIn, opt, lr)
	e.GET("/profile", h.profile, opt, lr)
	return nil
}

// loginRequiredMiddleware sends anonymous visitors to the login page.
func loginRequiredMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextUser(ctx); err != nil {
				return ctx.Redirect(http.StatusFound, "/login")
			}
			return next(ctx)
		}
	}
}

func (h *viewHandler) render(ctx echo.Context, name, title string, data interface{}) error {
	p := viewPage{AppName: h.conf.AppName, Title: title, Data: data}
	if usr, err := getContextUser(ctx); err == nil {
		p.User = &usr
	}
	return ctx.Render(http.StatusOK, name, p)
}

// Handlers

func (h *viewHandler) home(ctx echo.Context) error {
	if usr, err := getContextUser(ctx); err == nil {
		if usr.Role.IsAdmin() {
			return ctx.Redirect(http.StatusFound, "/admin")
		}
		return ctx.Redirect(http.StatusFound, "/student")
	}
	return h.render(ctx, "index", "Welcome", nil)
}

func (h *viewHandler) login(ctx echo.Context) error {
	if _, err := getContextUser(ctx); err == nil {
		return ctx.Redirect(http.StatusFound, "/events")
	}
	return h.render(ctx, "login", "Log in", nil)
}

func (h *viewHandler) logout(ctx echo.Context) error {
	h.auth.clearTokenCookie(ctx)
	return ctx.Redirect(http.StatusFound, "/login")
}

func (h *viewHandler) register(ctx echo.Context) error {
	if _, err := getContextUser(ctx); err == nil {
		return ctx.Redirect(http.StatusFound, "/events")
	}
	return h.render(ctx, "register", "Sign up", nil)
}

func (h *viewHandler) eventList(ctx echo.Context) error {
	pg := bindPage(ctx, h.itemsPerPage)
	evts, total, err := h.events.Query(ctx.Request().Context(), &event.QueryFilter{From: event.NowFunc().UTC()}, pg)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	return h.render(ctx, "events", "Events", echo.Map{"Events": evts, "Page": core.NewPageInfo(pg, total)})
}

func (h *viewHandler) eventDetail(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	ev, err := h.events.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding event by ID")
	}

	var status *attendance.Status
	if usr, err := getContextUser(ctx); err == nil {
		st, err := h.attendances.Status(ctx.Request().Context(), ev.ID, usr.ID)
		if err != nil {
			return errors.Wrap(err, "getting attendance status")
		}
		status = &st
	}
	canManage := authorize(ctx, access.ManageEvent, access.InDepartment(ev.DepartmentID)) == nil
	return h.render(ctx, "event_detail", ev.Title, echo.Map{"Event": ev, "Status": status, "CanManage": canManage})
}

func (h *viewHandler) calendar(ctx echo.Context) error {
	return h.render(ctx, "calendar", "Calendar", nil)
}

func (h *viewHandler) myEvents(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)
	pg := bindPage(ctx, h.itemsPerPage)
	atts, total, err := h.attendances.QueryByUser(ctx.Request().Context(), usr.ID, pg)
	if err != nil {
		return errors.Wrap(err, "querying attendances")
	}
	return h.render(ctx, "my_events", "My events", echo.Map{"Attendances": atts, "Page": core.NewPageInfo(pg, total)})
}

func (h *viewHandler) admin(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)
	if !usr.Role.IsAdmin() {
		return ctx.Redirect(http.StatusFound, "/student")
	}

	var stats analytics.Dashboard
	if err := authorize(ctx, access.ViewAnalytics, access.Target{DepartmentID: usr.DepartmentID}); err == nil {
		scope := usr.DepartmentID
		if usr.IsAdmin() {
			scope.Valid = false
		}
		if stats, err = h.analytics.Dashboard(ctx.Request().Context(), scope); err != nil {
			return errors.Wrap(err, "computing dashboard")
		}
	}
	return h.render(ctx, "admin", "Admin dashboard", echo.Map{"Stats": stats})
}

func (h *viewHandler) student(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)
	reqCtx := ctx.Request().Context()

	upcoming, err := h.events.Upcoming(reqCtx, 0)
	if err != nil {
		return errors.Wrap(err, "querying upcoming events")
	}
	atts, _, err := h.attendances.QueryByUser(reqCtx, usr.ID, core.Page{Number: 1, PerPage: 5})
	if err != nil {
		return errors.Wrap(err, "querying attendances")
	}
	return h.render(ctx, "student", "My dashboard", echo.Map{"Upcoming": upcoming, "Recent": atts})
}

func (h *viewHandler) checkIn(ctx echo.Context) error {
	eventID, err := queryInt64(ctx, "event_id")
	if err != nil {
		return err
	}
	var ev *event.Event
	if eventID.Valid {
		e, err := h.events.GetByID(ctx.Request().Context(), eventID.Int64)
		if err != nil {
			return errors.Wrap(err, "finding event by ID")
		}
		ev = &e
	}
	return h.render(ctx, "checkin", "Check in", echo.Map{"Event": ev})
}

func (h *viewHandler) profile(ctx echo.Context) error {
	return h.render(ctx, "profile", "Profile", nil)
}
