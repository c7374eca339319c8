package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/event"
)

type calendarApi struct {
	svc      event.Service
	validate *validator.Validate
}

func registerCalendarAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := calendarApi{svc: deps.EventSvc, validate: deps.Validate}

	g.GET("", api.calendar)
	g.GET("/upcoming", api.upcoming)
	g.POST("/conflicts", api.conflicts, jwt, adminPortalMiddleware())
}

// Handlers

func (api *calendarApi) calendar(ctx echo.Context) error {
	from, err := queryTime(ctx, "start")
	if err != nil {
		return err
	}
	to, err := queryTime(ctx, "end")
	if err != nil {
		return err
	}
	deptID, err := queryInt64(ctx, "department_id")
	if err != nil {
		return err
	}

	// current month by default
	if from.IsZero() && to.IsZero() {
		now := event.NowFunc().UTC()
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, 0)
	}

	entries, err := api.svc.Calendar(ctx.Request().Context(), from, to, deptID.Int64)
	if err != nil {
		return errors.Wrap(err, "querying calendar")
	}
	if entries == nil {
		entries = []event.CalendarEntry{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"events": entries})
}

func (api *calendarApi) upcoming(ctx echo.Context) error {
	var days int
	if val := ctx.QueryParam("days"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return core.NewFieldError("days", "must be an integer")
		}
		days = n
	}

	evts, err := api.svc.Upcoming(ctx.Request().Context(), days)
	if err != nil {
		return errors.Wrap(err, "querying upcoming events")
	}
	if evts == nil {
		evts = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"events": evts, "count": len(evts)})
}

func (api *calendarApi) conflicts(ctx echo.Context) error {
	var data ConflictsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConflictsRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	evts, err := api.svc.Conflicts(ctx.Request().Context(), event.Event{
		ID:           data.EventID,
		StartTime:    data.StartTime,
		EndTime:      data.EndTime,
		DepartmentID: data.DepartmentID,
	})
	if err != nil {
		return errors.Wrap(err, "checking conflicts")
	}
	if evts == nil {
		evts = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, ConflictsResponse{HasConflicts: len(evts) > 0, Conflicts: evts, Count: len(evts)})
}

type (
	// ConflictsRequest describes a time slot to check; EventID is the event being edited, if any.
	ConflictsRequest struct {
		StartTime    time.Time `json:"start_time" validate:"required"`
		EndTime      time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
		EventID      int64     `json:"event_id"`
		DepartmentID int64     `json:"department_id"`
	}

	ConflictsResponse struct {
		HasConflicts bool          `json:"has_conflicts"`
		Conflicts    []event.Event `json:"conflicts"`
		Count        int           `json:"conflict_count"`
	}
)
