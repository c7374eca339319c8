package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/mulespace/core"
)

// Role is the closed set of roles a User may hold.
type Role string

const (
	RoleStudent         Role = "student"
	RoleDepartmentAdmin Role = "department_admin"
	RoleAdmin           Role = "admin"
)

var (
	errInvalidRole = errors.New("invalid role")

	Roles = []RoleChoice{
		{Name: "Student", Value: RoleStudent},
		{Name: "Department Admin", Value: RoleDepartmentAdmin},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type RoleChoice struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func ParseRole(s string) (Role, error) {
	r := Role(core.CleanString(s, true /* lower */))
	if !r.Valid() {
		return "", errInvalidRole
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleDepartmentAdmin, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// IsAdmin reports whether the role can reach the admin portal.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin, RoleDepartmentAdmin:
		return true
	case RoleStudent:
		return false
	}
	return false
}

type User struct {
	ID             int64       `json:"id" db:"id"`
	Email          string      `json:"email" db:"email"`
	Username       string      `json:"username" db:"username"`
	PasswordHash   []byte      `json:"-" db:"password_hash"`
	FirstName      string      `json:"first_name" db:"first_name"`
	LastName       string      `json:"last_name" db:"last_name"`
	Role           Role        `json:"role" db:"role"`
	DepartmentID   null.Int64  `json:"department_id" db:"department_id"`
	DepartmentName null.String `json:"department" db:"department_name"`
	IsActive       bool        `json:"is_active" db:"is_active"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"` // UTC
	LastLogin      null.Time   `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) IsAdmin() bool           { return u.Role == RoleAdmin }
func (u User) IsDepartmentAdmin() bool { return u.Role == RoleDepartmentAdmin }
func (u User) IsStudent() bool         { return u.Role == RoleStudent }

// Registration contains the information a visitor provides to sign up as a student.
type Registration struct {
	Email        string     `json:"email" validate:"required,email,max=120"`
	Password     string     `json:"password" validate:"required"`
	FirstName    string     `json:"first_name" validate:"required,notblank,max=50"`
	LastName     string     `json:"last_name" validate:"required,notblank,max=50"`
	DepartmentID null.Int64 `json:"department_id"`
}

func (r *Registration) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.FirstName = core.CleanString(r.FirstName)
	r.LastName = core.CleanString(r.LastName)
	return validate.Struct(r)
}

// NewUser contains information needed to create a new User with any role.
type NewUser struct {
	Email        string     `json:"email" validate:"required,email,max=120"`
	Username     string     `json:"username" validate:"omitempty,min=3,max=80"`
	Password     string     `json:"password" validate:"required"`
	FirstName    string     `json:"first_name" validate:"required,notblank,max=50"`
	LastName     string     `json:"last_name" validate:"required,notblank,max=50"`
	Role         Role       `json:"role" validate:"omitempty,role"`
	DepartmentID null.Int64 `json:"department_id"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}
	return validate.Struct(nu)
}

// UpdateUser defines what an admin may modify on an existing User.
type UpdateUser struct {
	Role         *Role              `json:"role" validate:"omitempty,role"`
	IsActive     *bool              `json:"is_active"`
	DepartmentID core.OptionalInt64 `json:"department_id"`
}

func (uu UpdateUser) Validate(validate *validator.Validate) error { return validate.Struct(uu) }

type ChangePassword struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`

	// used by the password policy; never bound from requests
	usr User
}

func (cp *ChangePassword) Validate(validate *validator.Validate, usr User) error {
	cp.usr = usr
	return validate.Struct(cp)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search       string
	Roles        []Role
	DepartmentID null.Int64
	IsActive     *bool
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && !qf.DepartmentID.Valid && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
