package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/notification"
)

type notificationApi struct {
	svc          notification.Service
	itemsPerPage int
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := notificationApi{svc: deps.NotificationSvc, itemsPerPage: deps.Conf.ItemsPerPage}

	ag := g.Group("", jwt)
	ag.GET("", api.query)
	ag.PUT("/read-all", api.markAllRead)
	ag.PUT("/:id/read", api.markRead)
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	filter := notification.QueryFilter{UserID: usr.ID}
	if unread := queryBool(ctx, "unread"); unread != nil {
		filter.UnreadOnly = *unread
	}
	page := bindPage(ctx, api.itemsPerPage)

	notifs, total, err := api.svc.Query(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, pageResponse("notifications", notifs, core.NewPageInfo(page, total)))
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	notif, err := api.svc.MarkRead(ctx.Request().Context(), id, usr.ID)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"notification": notif})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	n, err := api.svc.MarkAllRead(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "All notifications marked as read", "updated": n})
}
