package echoapi

import (
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/access"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/event"
)

type attendanceApi struct {
	svc          attendance.Service
	events       event.Service
	validate     *validator.Validate
	itemsPerPage int
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := attendanceApi{
		svc:          deps.AttendanceSvc,
		events:       deps.EventSvc,
		validate:     deps.Validate,
		itemsPerPage: deps.Conf.ItemsPerPage,
	}

	// QR codes point here
	g.GET("/check-in", api.checkInRedirect)

	g.POST("/check-in", api.checkIn, jwt)
	g.POST("/bulk-check-in", api.bulkCheckIn, jwt)
	g.GET("/my-events", api.myEvents, jwt)
	g.GET("/event/:id/status", api.status, jwt)
	g.DELETE("/:id", api.destroy, jwt)
}

// Handlers

func (api *attendanceApi) checkInRedirect(ctx echo.Context) error {
	v := make(url.Values)
	if id := ctx.QueryParam("event_id"); id != "" {
		v.Set("event_id", id)
	}
	target := "/check-in"
	if len(v) > 0 {
		target += "?" + v.Encode()
	}
	return ctx.Redirect(http.StatusFound, target)
}

func (api *attendanceApi) checkIn(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data attendance.CheckIn
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckIn")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	method, err := attendance.ParseMethod(data.Method)
	if err != nil {
		return core.NewFieldError("check_in_method", err.Error())
	}
	if err = authorize(ctx, access.Register, access.Target{OwnerID: usr.ID}); err != nil {
		return err
	}

	att, err := api.svc.Register(ctx.Request().Context(), data.EventID, usr.ID, method)
	if err != nil {
		return errors.Wrap(err, "registering attendance")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Checked in successfully", "attendance": att})
}

func (api *attendanceApi) bulkCheckIn(ctx echo.Context) error {
	var data attendance.BulkCheckIn
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkCheckIn")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	ev, err := api.events.GetByID(reqCtx, data.EventID)
	if err != nil {
		return errors.Wrap(err, "finding event by ID")
	}
	if err = authorize(ctx, access.ManageAttendance, access.InDepartment(ev.DepartmentID)); err != nil {
		return err
	}

	res, err := api.svc.BulkCheckIn(reqCtx, ev.ID, data.UserIDs)
	if err != nil {
		return errors.Wrap(err, "bulk checking in")
	}
	if res.Success == nil {
		res.Success = []int64{}
	}
	if res.Errors == nil {
		res.Errors = []attendance.BulkError{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message":       "Bulk check-in completed",
		"success_count": len(res.Success),
		"error_count":   len(res.Errors),
		"results":       res,
	})
}

func (api *attendanceApi) myEvents(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	page := bindPage(ctx, api.itemsPerPage)
	atts, total, err := api.svc.QueryByUser(ctx.Request().Context(), usr.ID, page)
	if err != nil {
		return errors.Wrap(err, "querying attendances")
	}
	if atts == nil {
		atts = []attendance.Attendance{}
	}
	return ctx.JSON(http.StatusOK, pageResponse("attendances", atts, core.NewPageInfo(page, total)))
}

func (api *attendanceApi) status(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	eventID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	st, err := api.svc.Status(ctx.Request().Context(), eventID, usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting attendance status")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	att, err := api.svc.GetByID(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "finding attendance by ID")
	}
	ev, err := api.events.GetByID(reqCtx, att.EventID)
	if err != nil {
		return errors.Wrap(err, "finding event by ID")
	}
	if err = authorize(ctx, access.ManageAttendance, access.OwnedBy(att.UserID, ev.DepartmentID)); err != nil {
		return err
	}

	if err = api.svc.Delete(reqCtx, att.ID); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Attendance record deleted"})
}
