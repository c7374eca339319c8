package attendance

import (
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core/event"
)

type Method string

const (
	MethodQRCode      Method = "qr_code"
	MethodManual      Method = "manual"
	MethodSelfCheckIn Method = "self_check_in"
)

var errInvalidMethod = errors.New("check_in_method must be one of qr_code, manual, self_check_in")

// ParseMethod defaults to MethodQRCode when s is empty.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case "":
		return MethodQRCode, nil
	case MethodQRCode, MethodManual, MethodSelfCheckIn:
		return m, nil
	}
	return "", errInvalidMethod
}

type Attendance struct {
	ID          int64     `json:"id" db:"id"`
	EventID     int64     `json:"event_id" db:"event_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at" db:"checked_in_at"`
	Method      Method    `json:"check_in_method" db:"check_in_method"`

	EventTitle string `json:"event_title,omitempty" db:"event_title"`
	Username   string `json:"username,omitempty" db:"username"`
	UserName   string `json:"user_name,omitempty" db:"user_name"`
	UserEmail  string `json:"user_email,omitempty" db:"user_email"`

	Event *event.Event `json:"event,omitempty" db:"-"`
}

// Admission is the state observed for one (event, user) pair before inserting an Attendance.
type Admission struct {
	Event      event.Event
	Registered bool
	Count      int
}

// Check evaluates the admission predicates in order; the first failure wins.
func (a Admission) Check() error {
	if !a.Event.IsActive() {
		return ErrEventInactive
	}
	if a.Registered {
		return ErrDuplicateRegistration
	}
	if a.Event.Capacity.Valid && int64(a.Count) >= a.Event.Capacity.Int64 {
		return ErrCapacityExceeded
	}
	return nil
}

// QueryFilter selects attendances of one event or one user.
type QueryFilter struct {
	EventID int64
	UserID  int64
}

func (qf QueryFilter) Matches(att Attendance) bool {
	return (qf.EventID == 0 || att.EventID == qf.EventID) && (qf.UserID == 0 || att.UserID == qf.UserID)
}

type Status struct {
	EventID         int64       `json:"event_id"`
	Registered      bool        `json:"registered"`
	Attendance      *Attendance `json:"attendance,omitempty"`
	RegisteredCount int         `json:"registered_count"`
	MaxCapacity     null.Int64  `json:"max_capacity"`
	SpotsLeft       null.Int64  `json:"spots_left"`
	IsActive        bool        `json:"is_active"`
}

type BulkError struct {
	UserID int64  `json:"user_id"`
	Error  string `json:"error"`
}

type BulkResult struct {
	Success []int64     `json:"success"`
	Errors  []BulkError `json:"errors"`
}

// BulkCheckIn holds the user ids to check in manually.
type BulkCheckIn struct {
	EventID int64   `json:"event_id" validate:"required"`
	UserIDs []int64 `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

// CheckIn is a registration request.
type CheckIn struct {
	EventID int64  `json:"event_id" validate:"required"`
	Method  string `json:"check_in_method"`
}
