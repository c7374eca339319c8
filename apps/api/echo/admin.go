package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/access"
	"github.com/trezcool/mulespace/core/analytics"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/user"
)

type adminApi struct {
	users        user.Service
	depts        department.Service
	analytics    analytics.Service
	validate     *validator.Validate
	itemsPerPage int
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := adminApi{
		users:        deps.UserSvc,
		depts:        deps.DepartmentSvc,
		analytics:    deps.AnalyticsSvc,
		validate:     deps.Validate,
		itemsPerPage: deps.Conf.ItemsPerPage,
	}

	ag := g.Group("", jwt, adminPortalMiddleware())

	// analytics
	ag.GET("/dashboard", api.dashboard)
	ag.GET("/analytics/events", api.eventAnalytics)
	ag.GET("/analytics/departments", api.departmentAnalytics, allowMiddleware(access.ViewAnalytics))

	// users
	ug := ag.Group("/users", allowMiddleware(access.ManageUsers))
	ug.GET("", api.queryUsers)
	ug.GET("/roles", api.queryRoles)
	ug.PUT("/:id", api.updateUser)

	// departments
	dg := ag.Group("/departments", allowMiddleware(access.ManageDepartments))
	dg.POST("", api.createDepartment)
	dg.PUT("/:id", api.updateDepartment)
	dg.DELETE("/:id", api.destroyDepartment)
}

// analyticsScope returns the department the caller's analytics are restricted to; invalid means everything.
// Admins may narrow it with `department_id`.
func (api *adminApi) analyticsScope(ctx echo.Context) (null.Int64, error) {
	p := principal(ctx)
	if p != nil && p.Role == user.RoleAdmin {
		return queryInt64(ctx, "department_id")
	}
	var scope null.Int64
	if p != nil {
		scope = p.DepartmentID
	}
	if err := authorize(ctx, access.ViewAnalytics, access.Target{DepartmentID: scope}); err != nil {
		return null.Int64{}, err
	}
	return scope, nil
}

// Handlers

func (api *adminApi) dashboard(ctx echo.Context) error {
	scope, err := api.analyticsScope(ctx)
	if err != nil {
		return err
	}
	stats, err := api.analytics.Dashboard(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "computing dashboard")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"stats": stats})
}

func (api *adminApi) eventAnalytics(ctx echo.Context) error {
	scope, err := api.analyticsScope(ctx)
	if err != nil {
		return err
	}
	stats, err := api.analytics.EventStats(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "computing event analytics")
	}
	if stats == nil {
		stats = []analytics.EventStat{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"analytics": stats})
}

func (api *adminApi) departmentAnalytics(ctx echo.Context) error {
	stats, err := api.analytics.DepartmentStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing department analytics")
	}
	if stats == nil {
		stats = []analytics.DepartmentStat{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"analytics": stats})
}

func (api *adminApi) queryUsers(ctx echo.Context) error {
	var err error
	filter := &user.QueryFilter{
		Search:   ctx.QueryParam("search"),
		IsActive: queryBool(ctx, "is_active"),
	}
	for _, r := range ctx.QueryParams()["role"] {
		// unknown roles are kept so that they match nothing
		filter.Roles = append(filter.Roles, user.Role(core.CleanString(r, true /* lower */)))
	}
	if filter.DepartmentID, err = queryInt64(ctx, "department_id"); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)
	page := bindPage(ctx, api.itemsPerPage)

	users, total, err := api.users.Query(ctx.Request().Context(), filter, page, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, pageResponse("users", users, core.NewPageInfo(page, total)))
}

func (api *adminApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *adminApi) updateUser(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	// Say No to Suicide! admins cannot demote or deactivate themselves
	if ctxUsr, _ := getContextUser(ctx); ctxUsr.ID == id {
		if (data.Role != nil && *data.Role != ctxUsr.Role) || (data.IsActive != nil && !*data.IsActive) {
			return access.ErrForbidden
		}
	}

	usr, err := api.users.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "User updated successfully", "user": usr})
}

func (api *adminApi) createDepartment(ctx echo.Context) error {
	var data department.NewDepartment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDepartment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	dept, err := api.depts.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating department")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Department created successfully", "department": dept})
}

func (api *adminApi) updateDepartment(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	var data department.UpdateDepartment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDepartment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	dept, err := api.depts.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating department")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Department updated successfully", "department": dept})
}

func (api *adminApi) destroyDepartment(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.depts.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting department")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Department deleted successfully"})
}
