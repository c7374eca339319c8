package department

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
)

type Department struct {
	ID           int64       `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Description  null.String `json:"description" db:"description"`
	ContactEmail null.String `json:"contact_email" db:"contact_email"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UserCount    int         `json:"user_count" db:"user_count"`
	EventCount   int         `json:"event_count" db:"event_count"`
}

type NewDepartment struct {
	Name         string `json:"name" validate:"required,notblank,max=100"`
	Description  string `json:"description"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email,max=120"`
}

func (nd *NewDepartment) Validate(validate *validator.Validate) error {
	nd.Name = core.CleanString(nd.Name)
	nd.Description = core.CleanString(nd.Description)
	nd.ContactEmail = core.CleanString(nd.ContactEmail, true /* lower */)
	return validate.Struct(nd)
}

// UpdateDepartment holds the fields to change; nil fields are left untouched.
type UpdateDepartment struct {
	Name         *string `json:"name" validate:"omitempty,notblank,max=100"`
	Description  *string `json:"description"`
	ContactEmail *string `json:"contact_email" validate:"omitempty,email,max=120"`
}

func (ud *UpdateDepartment) Validate(validate *validator.Validate) error {
	clean := func(s *string, lower bool) {
		if s != nil {
			*s = core.CleanString(*s, lower)
		}
	}
	clean(ud.Name, false)
	clean(ud.Description, false)
	clean(ud.ContactEmail, true)
	return validate.Struct(ud)
}
