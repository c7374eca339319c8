package echoapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/access"
	"github.com/trezcool/mulespace/core/user"
)

const (
	tokenContextKey = "userToken"
	contextUserKey  = "user"
	tokenCookieName = "token"
	authScheme      = "Bearer"
)

// Claims represents the authorization claims transmitted via a JWT.
// The subject is the user's ID.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64     `json:"oriat,omitempty"`
	Username     string    `json:"username,omitempty"`
	Email        string    `json:"email,omitempty"`
	Role         user.Role `json:"role,omitempty"`
	IsAdmin      bool      `json:"is_admin,omitempty"` // -> ADMIN PORTAL
}

func GetUserClaims(usr user.User, conf *core.Config, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   strconv.FormatInt(usr.ID, 10),
			Audience:  "Campus",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		Role:         usr.Role,
		IsAdmin:      usr.Role.IsAdmin(),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// authenticator resolves the calling user from a bearer token or, for browsers, from the `token` cookie.
type authenticator struct {
	conf      *core.Config
	users     user.Service
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config, users user.Service) *authenticator {
	return &authenticator{
		conf:  conf,
		users: users,
		jwtConfig: middleware.JWTConfig{
			BeforeFunc:    cookieToHeader,
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    tokenContextKey,
			Claims:        new(Claims),
		},
	}
}

// cookieToHeader lets the JWT middleware read the view cookie when no Authorization header was sent.
func cookieToHeader(ctx echo.Context) {
	req := ctx.Request()
	if req.Header.Get(echo.HeaderAuthorization) != "" {
		return
	}
	if cookie, err := ctx.Cookie(tokenCookieName); err == nil && cookie.Value != "" {
		req.Header.Set(echo.HeaderAuthorization, authScheme+" "+cookie.Value)
	}
}

// required rejects requests without a valid token or whose user is gone or deactivated.
func (a *authenticator) required() echo.MiddlewareFunc {
	jwtMiddleware := middleware.JWTWithConfig(a.jwtConfig)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMiddleware(func(ctx echo.Context) error {
			if _, ok := ctx.Get(contextUserKey).(user.User); ok {
				return next(ctx)
			}
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr, err := a.userOf(ctx, claims)
			if err != nil {
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		})
	}
}

// optional sets the context user when the request carries a usable token and ignores it otherwise.
func (a *authenticator) optional() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if usr, err := a.userFromRequest(ctx); err == nil && usr.IsActive {
				ctx.Set(contextUserKey, usr)
			}
			return next(ctx)
		}
	}
}

func (a *authenticator) userFromRequest(ctx echo.Context) (user.User, error) {
	raw := tokenFromRequest(ctx)
	if raw == "" {
		return user.User{}, errUnauthorized
	}
	claims, err := a.parseToken(raw)
	if err != nil {
		return user.User{}, err
	}
	return a.userOf(ctx, *claims)
}

func (a *authenticator) parseToken(raw string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, errors.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return a.jwtConfig.SigningKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errUnauthorized
	}
	return claims, nil
}

func (a *authenticator) userOf(ctx echo.Context, claims Claims) (user.User, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return user.User{}, errUnauthorized
	}
	usr, err := a.users.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

// refreshToken issues a new token as long as the original one was issued less than JWTRefreshExpirationDelta ago.
func (a *authenticator) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}
	return GenerateToken(GetUserClaims(usr, a.conf, claims.OrigIssuedAt), a.conf)
}

func (a *authenticator) setTokenCookie(ctx echo.Context, token string) {
	ctx.SetCookie(&http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.conf.Server.JWTExpirationDelta),
		HttpOnly: true,
		Secure:   !a.conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *authenticator) clearTokenCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func tokenFromRequest(ctx echo.Context) string {
	if h := ctx.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if l := len(authScheme); len(h) > l+1 && strings.EqualFold(h[:l], authScheme) {
			return h[l+1:]
		}
		return ""
	}
	if cookie, err := ctx.Cookie(tokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// principal returns nil for anonymous callers.
func principal(ctx echo.Context) *access.Principal {
	usr, err := getContextUser(ctx)
	if err != nil {
		return nil
	}
	return access.PrincipalOf(usr)
}

func authorize(ctx echo.Context, act access.Action, tgt access.Target) error {
	return access.Authorize(principal(ctx), act, tgt)
}
