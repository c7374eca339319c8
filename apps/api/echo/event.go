package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/access"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/event"
)

const flierField = "flier"

type eventApi struct {
	svc          event.Service
	attSvc       attendance.Service
	qr           QRRenderer
	validate     *validator.Validate
	itemsPerPage int
}

func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := eventApi{
		svc:          deps.EventSvc,
		attSvc:       deps.AttendanceSvc,
		qr:           deps.QR,
		validate:     deps.Validate,
		itemsPerPage: deps.Conf.ItemsPerPage,
	}

	g.GET("", api.query)
	g.POST("", api.create, jwt)

	// detail endpoints
	g.GET("/:id", api.retrieve)
	g.GET("/:id/qrcode", api.qrcode)
	g.PUT("/:id", api.update, jwt)
	g.DELETE("/:id", api.retire, jwt)
	g.PUT("/:id/flier", api.uploadFlier, jwt)
	g.GET("/:id/attendees", api.attendees, jwt)
	g.GET("/:id/attendees/export", api.exportAttendees, jwt)
}

// getEvent loads the `:id` event, then checks that the caller may perform `act` on it.
// A missing event is reported before a denied action.
func (api *eventApi) getEvent(ctx echo.Context, act access.Action) (event.Event, error) {
	id, err := paramID(ctx, "id")
	if err != nil {
		return event.Event{}, err
	}
	ev, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "finding event by ID")
	}
	if err = authorize(ctx, act, access.InDepartment(ev.DepartmentID)); err != nil {
		return event.Event{}, err
	}
	return ev, nil
}

// Handlers

func (api *eventApi) query(ctx echo.Context) error {
	var err error
	filter := new(event.QueryFilter)
	if filter.DepartmentID, err = queryInt64(ctx, "department_id"); err != nil {
		return err
	}
	if filter.From, err = queryTime(ctx, "start_date"); err != nil {
		return err
	}
	if filter.To, err = queryTime(ctx, "end_date"); err != nil {
		return err
	}
	filter.Search = ctx.QueryParam("search")

	page := bindPage(ctx, api.itemsPerPage)
	evts, total, err := api.svc.Query(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if evts == nil {
		evts = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, pageResponse("events", evts, core.NewPageInfo(page, total)))
}

func (api *eventApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data event.NewEvent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = authorize(ctx, access.ManageEvent, access.InDepartment(data.DepartmentID)); err != nil {
		return err
	}

	ev, err := api.svc.Create(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Event created successfully", "event": ev})
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	ev, err := api.getEvent(ctx, access.ReadCatalog)
	if err != nil {
		return err
	}

	resp := echo.Map{"event": ev}
	if inc := queryBool(ctx, "include_attendees"); inc != nil && *inc {
		if authorize(ctx, access.ViewAttendees, access.InDepartment(ev.DepartmentID)) == nil {
			atts, err := api.attSvc.Attendees(ctx.Request().Context(), ev.ID)
			if err != nil {
				return errors.Wrap(err, "querying attendees")
			}
			if atts == nil {
				atts = []attendance.Attendance{}
			}
			resp["attendees"] = atts
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *eventApi) update(ctx echo.Context) error {
	ev, err := api.getEvent(ctx, access.ManageEvent)
	if err != nil {
		return err
	}

	var data event.UpdateEvent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	// moving the event requires rights on the destination department too
	if data.DepartmentID != nil && *data.DepartmentID != ev.DepartmentID {
		if err = authorize(ctx, access.ManageEvent, access.InDepartment(*data.DepartmentID)); err != nil {
			return err
		}
	}

	ev, err = api.svc.Update(ctx.Request().Context(), ev.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Event updated successfully", "event": ev})
}

func (api *eventApi) retire(ctx echo.Context) error {
	ev, err := api.getEvent(ctx, access.ManageEvent)
	if err != nil {
		return err
	}
	if _, err = api.svc.Retire(ctx.Request().Context(), ev.ID); err != nil {
		return errors.Wrap(err, "retiring event")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Event deleted successfully"})
}

func (api *eventApi) uploadFlier(ctx echo.Context) error {
	ev, err := api.getEvent(ctx, access.ManageEvent)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile(flierField)
	if err != nil {
		return core.NewFieldError(flierField, "an image file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening flier")
	}
	defer src.Close()

	ev, err = api.svc.SetFlier(ctx.Request().Context(), ev.ID, src)
	if err != nil {
		return errors.Wrap(err, "saving flier")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Flier uploaded successfully", "event": ev})
}

func (api *eventApi) attendees(ctx echo.Context) error {
	ev, err := api.getEvent(ctx, access.ViewAttendees)
	if err != nil {
		return err
	}
	atts, err := api.attSvc.Attendees(ctx.Request().Context(), ev.ID)
	if err != nil {
		return errors.Wrap(err, "querying attendees")
	}
	if atts == nil {
		atts = []attendance.Attendance{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"attendees": atts})
}

func (api *eventApi) exportAttendees(ctx echo.Context) error {
	ev, err := api.getEvent(ctx, access.ViewAttendees)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = api.attSvc.ExportCSV(ctx.Request().Context(), ev.ID, &buf); err != nil {
		return errors.Wrap(err, "exporting attendees")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=event_%d_attendance.csv", ev.ID))
	return ctx.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

func (api *eventApi) qrcode(ctx echo.Context) error {
	ev, err := api.getEvent(ctx, access.ReadCatalog)
	if err != nil {
		return err
	}
	png, err := api.qr.PNG(ev.ID)
	if err != nil {
		return errors.Wrap(err, "rendering QR code")
	}
	return ctx.Blob(http.StatusOK, "image/png", png)
}
