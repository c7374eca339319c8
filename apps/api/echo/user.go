package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/user"
)

type authApi struct {
	svc      user.Service
	depts    department.Service
	auth     *authenticator
	validate *validator.Validate
	logger   core.Logger
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := authApi{
		svc:      deps.UserSvc,
		depts:    deps.DepartmentSvc,
		auth:     auth,
		validate: deps.Validate,
		logger:   deps.Logger,
	}

	// un-authed endpoints
	// TODO: rate limit `/login` & `/password-reset`
	g.POST("/register", api.register)
	g.POST("/login", api.login)
	g.POST("/logout", api.logout)
	g.POST("/password-reset", api.resetPassword)
	g.POST("/password-reset-confirm", api.confirmPasswordReset)
	g.GET("/departments", api.queryDepartments)

	// authed endpoints
	g.GET("/me", api.me, jwt)
	g.PUT("/password", api.changePassword, jwt)
	g.POST("/change-password", api.changePassword, jwt)
	g.POST("/token-refresh", api.refreshToken, jwt)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data user.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	token, err := GenerateToken(GetUserClaims(usr, api.auth.conf), api.auth.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	api.auth.setTokenCookie(ctx, token)

	return ctx.JSON(http.StatusCreated, AuthResponse{Message: "User registered successfully", Token: token, User: &usr})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.svc.Authenticate(reqCtx, data.login(), data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}
	if usr, err = api.svc.SetLastLogin(reqCtx, usr); err != nil {
		return errors.Wrap(err, "setting lastLogin")
	}

	token, err := GenerateToken(GetUserClaims(usr, api.auth.conf), api.auth.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	api.auth.setTokenCookie(ctx, token)

	return ctx.JSON(http.StatusOK, AuthResponse{Message: "Login successful", Token: token, User: &usr})
}

func (api *authApi) logout(ctx echo.Context) error {
	api.auth.clearTokenCookie(ctx)
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Logout successful"})
}

func (api *authApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"user": usr})
}

func (api *authApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = data.Validate(api.validate, usr); err != nil {
		return err
	}
	if _, err = api.svc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	api.auth.setTokenCookie(ctx, token)
	return ctx.JSON(http.StatusOK, AuthResponse{Token: token})
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, MessageResponse{
		Message: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Password has been reset with the new password."})
}

func (api *authApi) queryDepartments(ctx echo.Context) error {
	depts, err := api.depts.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying departments")
	}
	if depts == nil {
		depts = []department.Department{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"departments": depts})
}

type (
	// LoginRequest accepts either the email or the username as login.
	LoginRequest struct {
		Email    string `json:"email" validate:"required_without=Username"`
		Username string `json:"username" validate:"required_without=Email"`
		Password string `json:"password" validate:"required"`
	}

	AuthResponse struct {
		Message string     `json:"message,omitempty"`
		Token   string     `json:"token"`
		User    *user.User `json:"user,omitempty"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (lr LoginRequest) login() string {
	if lr.Email != "" {
		return lr.Email
	}
	return lr.Username
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
