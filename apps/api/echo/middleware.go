package echoapi

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/trezcool/mulespace/core/access"
)

func requestIDMiddleware() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	})
}

// allowMiddleware guards routes whose action has no department or owner, e.g. ManageUsers.
func allowMiddleware(act access.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := authorize(ctx, act, access.Target{}); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// adminPortalMiddleware lets admins and department admins through.
func adminPortalMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p := principal(ctx)
			if p == nil {
				return access.ErrUnauthenticated
			}
			if !p.Role.IsAdmin() {
				return access.ErrForbidden
			}
			return next(ctx)
		}
	}
}
