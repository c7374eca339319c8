package user

import (
	"context"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWrongPassword      = errors.New("current password is incorrect")

	NowFunc = time.Now // mockable

	usernameCleaner = regexp.MustCompile(`[^a-z0-9._]`)
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields and returns the requested page and the total count.
		// QueryFilter.Search does a case-insensitive match on one of names, username or email.
		QueryUsers(ctx context.Context, filter *QueryFilter, page core.Page, ordering []core.DBOrdering) ([]User, int, error)
		GetUserByID(ctx context.Context, id int64) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, username string) (User, error)
		UsernameExists(ctx context.Context, username string) (bool, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	// DepartmentChecker reports whether a department exists; satisfied by department.Service.
	DepartmentChecker interface {
		Exists(ctx context.Context, id int64) (bool, error)
	}

	Service interface {
		Register(ctx context.Context, r Registration) (User, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, username, password string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, page core.Page, ordering []core.DBOrdering) ([]User, int, error)
		GetByID(ctx context.Context, id int64) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, username string) (User, error)
		Update(ctx context.Context, id int64, uu UpdateUser) (User, error)
		ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
	}

	service struct {
		repo    Repository
		depts   DepartmentChecker
		mailSvc core.EmailService
		tokens  tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, depts DepartmentChecker, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:    repo,
		depts:   depts,
		mailSvc: mailSvc,
		tokens: tokenGenerator{
			secretKey: []byte(conf.SecretKey),
			timeout:   conf.PasswordResetTimeoutDelta,
			nowFunc:   time.Now,
		},
	}
}

// Register signs up a student; the username is derived from the email.
func (svc *service) Register(ctx context.Context, r Registration) (User, error) {
	return svc.Create(ctx, NewUser{
		Email:        r.Email,
		Password:     r.Password,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Role:         RoleStudent,
		DepartmentID: r.DepartmentID,
	})
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	if _, err := svc.repo.GetUserByEmail(ctx, nu.Email); err == nil {
		return User{}, ErrEmailExists
	} else if errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "checking email")
	}
	if err := svc.checkDepartment(ctx, nu.DepartmentID); err != nil {
		return User{}, err
	}

	uname := nu.Username
	if uname == "" {
		var err error
		if uname, err = svc.deriveUsername(ctx, nu.Email); err != nil {
			return User{}, err
		}
	}
	role := nu.Role
	if role == "" {
		role = RoleStudent
	}

	now := NowFunc().UTC()
	usr := User{
		Email:        nu.Email,
		Username:     uname,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Role:         role,
		DepartmentID: nu.DepartmentID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

// deriveUsername builds a username from the email's local part, suffixing a counter until it is free.
func (svc *service) deriveUsername(ctx context.Context, email string) (string, error) {
	base := email
	if addr, err := mail.ParseAddress(email); err == nil {
		base = addr.Address
	}
	if i := strings.LastIndex(base, "@"); i >= 0 {
		base = base[:i]
	}
	base = usernameCleaner.ReplaceAllString(strings.ToLower(base), "")
	if base == "" {
		base = "user"
	}

	uname := base
	for counter := 1; ; counter++ {
		exists, err := svc.repo.UsernameExists(ctx, uname)
		if err != nil {
			return "", errors.Wrap(err, "checking username")
		}
		if !exists {
			return uname, nil
		}
		uname = base + strconv.Itoa(counter)
	}
}

func (svc *service) checkDepartment(ctx context.Context, deptID null.Int64) error {
	if !deptID.Valid || svc.depts == nil {
		return nil
	}
	exists, err := svc.depts.Exists(ctx, deptID.Int64)
	if err != nil {
		return errors.Wrap(err, "checking department")
	}
	if !exists {
		return core.NewFieldError("department_id", "department not found")
	}
	return nil
}

// Authenticate checks credentials; inactive users are returned too so callers can tell them apart.
func (svc *service) Authenticate(ctx context.Context, username, password string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, username)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, page core.Page, ordering []core.DBOrdering) ([]User, int, error) {
	return svc.repo.QueryUsers(ctx, filter, page, ordering)
}

func (svc *service) GetByID(ctx context.Context, id int64) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) Update(ctx context.Context, id int64, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if uu.Role != nil {
		usr.Role = *uu.Role
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.DepartmentID.Set {
		if err = svc.checkDepartment(ctx, uu.DepartmentID.Int64); err != nil {
			return User{}, err
		}
		usr.DepartmentID = uu.DepartmentID.Int64
	}
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := usr.CheckPassword(cp.CurrentPassword); err != nil {
		return User{}, core.NewFieldError("current_password", ErrWrongPassword.Error())
	}
	return svc.SetPassword(ctx, usr, cp.NewPassword)
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(NowFunc().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

type passwordResetData struct {
	FirstName string
	Username  string
	UID       string
	Token     string
}

// RequestPasswordReset emails a reset link to the active user owning `email`.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: passwordResetData{
			FirstName: usr.FirstName,
			Username:  usr.Username,
			UID:       EncodeUID(usr),
			Token:     svc.tokens.makeToken(usr),
		},
	})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	invalid := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: errInvalidToken.Error()})

	id, err := decodeUID(rp.UID)
	if err != nil {
		return invalid
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalid
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}
	_, err = svc.SetPassword(ctx, usr, rp.Password)
	return err
}
