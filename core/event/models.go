package event

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
)

// State is the lifecycle of an Event: Active until retired, Retired forever after.
type State string

const (
	StateActive  State = "active"
	StateRetired State = "retired"
)

type Event struct {
	ID              int64       `json:"id" db:"id"`
	Title           string      `json:"title" db:"title"`
	Description     null.String `json:"description" db:"description"`
	Location        null.String `json:"location" db:"location"`
	StartTime       time.Time   `json:"start_time" db:"start_time"` // UTC
	EndTime         time.Time   `json:"end_time" db:"end_time"`     // UTC
	Capacity        null.Int64  `json:"max_capacity" db:"max_capacity"`
	DepartmentID    int64       `json:"department_id" db:"department_id"`
	DepartmentName  string      `json:"department_name" db:"department_name"`
	CreatedBy       int64       `json:"created_by" db:"created_by"`
	CreatorName     string      `json:"creator_name" db:"creator_name"`
	QRCodePath      null.String `json:"qr_code_path" db:"qr_code_path"`
	FlierPath       null.String `json:"flier_path" db:"flier_path"`
	State           State       `json:"state" db:"state"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
	AttendanceCount int         `json:"registered_count" db:"attendance_count"`
}

func (e Event) IsActive() bool { return e.State == StateActive }

// SpotsLeft returns the remaining capacity; invalid when the capacity is unlimited.
func (e Event) SpotsLeft() null.Int64 {
	if !e.Capacity.Valid {
		return null.Int64{}
	}
	left := e.Capacity.Int64 - int64(e.AttendanceCount)
	if left < 0 {
		left = 0
	}
	return null.Int64From(left)
}

func (e Event) MarshalJSON() ([]byte, error) {
	type event Event
	return json.Marshal(struct {
		event
		IsActive bool `json:"is_active"`
	}{event(e), e.IsActive()})
}

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	Title        string     `json:"title" validate:"required,notblank,max=200"`
	Description  string     `json:"description"`
	Location     string     `json:"location" validate:"max=200"`
	StartTime    time.Time  `json:"start_time" validate:"required"`
	EndTime      time.Time  `json:"end_time" validate:"required,gtfield=StartTime"`
	Capacity     null.Int64 `json:"max_capacity"`
	DepartmentID int64      `json:"department_id" validate:"required"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Location = core.CleanString(ne.Location)
	if err := validate.Struct(ne); err != nil {
		return err
	}
	return validateCapacity(ne.Capacity)
}

// UpdateEvent holds the fields to change; nil (or unset) fields are left untouched.
type UpdateEvent struct {
	Title        *string            `json:"title" validate:"omitempty,notblank,max=200"`
	Description  *string            `json:"description"`
	Location     *string            `json:"location" validate:"omitempty,max=200"`
	StartTime    *time.Time         `json:"start_time"`
	EndTime      *time.Time         `json:"end_time"`
	Capacity     core.OptionalInt64 `json:"max_capacity"`
	DepartmentID *int64             `json:"department_id" validate:"omitempty,gt=0"`
}

func (ue *UpdateEvent) Validate(validate *validator.Validate) error {
	for _, s := range []*string{ue.Title, ue.Description, ue.Location} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if err := validate.Struct(ue); err != nil {
		return err
	}
	if ue.Capacity.Set {
		return validateCapacity(ue.Capacity.Int64)
	}
	return nil
}

// apply merges the update into ev and re-checks the invariants on the result.
func (ue UpdateEvent) apply(ev Event) (Event, error) {
	if ue.Title != nil {
		ev.Title = *ue.Title
	}
	if ue.Description != nil {
		ev.Description = core.NullString(*ue.Description)
	}
	if ue.Location != nil {
		ev.Location = core.NullString(*ue.Location)
	}
	if ue.StartTime != nil {
		ev.StartTime = ue.StartTime.UTC()
	}
	if ue.EndTime != nil {
		ev.EndTime = ue.EndTime.UTC()
	}
	if ue.Capacity.Set {
		if err := validateCapacity(ue.Capacity.Int64); err != nil {
			return Event{}, err
		}
		if ue.Capacity.Valid && ue.Capacity.Int64.Int64 < int64(ev.AttendanceCount) {
			return Event{}, core.NewFieldError("max_capacity", "max_capacity cannot be lower than the number of registered attendees")
		}
		ev.Capacity = ue.Capacity.Int64
	}
	if ue.DepartmentID != nil {
		ev.DepartmentID = *ue.DepartmentID
	}
	if !ev.StartTime.Before(ev.EndTime) {
		return Event{}, core.NewFieldError("end_time", "end_time must be after start_time")
	}
	return ev, nil
}

// MaxCapacity is the largest capacity the events table can store (INTEGER column).
const MaxCapacity = math.MaxInt32

func validateCapacity(c null.Int64) error {
	switch {
	case !c.Valid:
		return nil
	case c.Int64 < 0:
		return core.NewFieldError("max_capacity", "max_capacity must be 0 or greater")
	case c.Int64 > MaxCapacity:
		return core.NewFieldError("max_capacity", fmt.Sprintf("max_capacity must be at most %d", MaxCapacity))
	}
	return nil
}

// QueryFilter selects events. Zero values are ignored.
type QueryFilter struct {
	DepartmentID null.Int64
	Search       string
	From         time.Time
	To           time.Time
	// Overlap matches events intersecting [From, To) instead of events starting within [From, To].
	Overlap        bool
	IncludeRetired bool
	ExcludeID      int64
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Matches evaluates the filter against a single event.
func (qf QueryFilter) Matches(ev Event) bool {
	if !qf.IncludeRetired && !ev.IsActive() {
		return false
	}
	if qf.DepartmentID.Valid && ev.DepartmentID != qf.DepartmentID.Int64 {
		return false
	}
	if qf.ExcludeID != 0 && ev.ID == qf.ExcludeID {
		return false
	}
	if qf.Overlap {
		if !qf.To.IsZero() && !ev.StartTime.Before(qf.To) {
			return false
		}
		if !qf.From.IsZero() && !ev.EndTime.After(qf.From) {
			return false
		}
	} else {
		if !qf.From.IsZero() && ev.StartTime.Before(qf.From) {
			return false
		}
		if !qf.To.IsZero() && ev.StartTime.After(qf.To) {
			return false
		}
	}
	return true
}
