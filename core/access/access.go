// Package access decides whether a principal may perform an action on a target.
// Authorize is a pure function: it never touches storage and never mutates anything.
package access

import (
	"errors"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core/user"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("permission denied")
)

type Action int

const (
	ReadCatalog Action = iota
	ManageEvent
	ViewAttendees
	Register
	ManageAttendance
	ViewAnalytics
	ManageUsers
	ManageDepartments
)

var actionNames = map[Action]string{
	ReadCatalog:       "read_catalog",
	ManageEvent:       "manage_event",
	ViewAttendees:     "view_attendees",
	Register:          "register",
	ManageAttendance:  "manage_attendance",
	ViewAnalytics:     "view_analytics",
	ManageUsers:       "manage_users",
	ManageDepartments: "manage_departments",
}

func (a Action) String() string { return actionNames[a] }

// Principal is the authenticated caller. A nil *Principal is an anonymous caller.
type Principal struct {
	UserID       int64
	Role         user.Role
	DepartmentID null.Int64
}

func PrincipalOf(usr user.User) *Principal {
	return &Principal{UserID: usr.ID, Role: usr.Role, DepartmentID: usr.DepartmentID}
}

// Target is what an action applies to: the owning department and, for attendance, the attendee.
type Target struct {
	DepartmentID null.Int64
	OwnerID      int64
}

// InDepartment targets an entity owned by department `id`.
func InDepartment(id int64) Target {
	return Target{DepartmentID: null.Int64From(id)}
}

// OwnedBy targets an attendance row of `userID` for an event of department `deptID`.
func OwnedBy(userID, deptID int64) Target {
	return Target{DepartmentID: null.Int64From(deptID), OwnerID: userID}
}

// Authorize returns nil when the principal may perform the action on the target,
// ErrUnauthenticated for anonymous callers and ErrForbidden otherwise.
func Authorize(p *Principal, act Action, tgt Target) error {
	if act == ReadCatalog {
		return nil
	}
	if p == nil {
		return ErrUnauthenticated
	}

	switch p.Role {
	case user.RoleAdmin:
		return nil

	case user.RoleDepartmentAdmin:
		switch act {
		case ManageUsers, ManageDepartments:
			return ErrForbidden
		case Register:
			return p.ownerOnly(tgt)
		case ManageAttendance:
			if p.owns(tgt) {
				return nil
			}
		case ReadCatalog, ManageEvent, ViewAttendees, ViewAnalytics:
		}
		return p.sameDepartment(tgt)

	case user.RoleStudent:
		switch act {
		case Register, ManageAttendance:
			return p.ownerOnly(tgt)
		case ReadCatalog, ManageEvent, ViewAttendees, ViewAnalytics, ManageUsers, ManageDepartments:
		}
		return ErrForbidden
	}
	return ErrForbidden
}

func (p *Principal) owns(tgt Target) bool {
	return p.UserID != 0 && tgt.OwnerID == p.UserID
}

func (p *Principal) ownerOnly(tgt Target) error {
	if p.owns(tgt) {
		return nil
	}
	return ErrForbidden
}

// sameDepartment denies whenever either side has no department.
func (p *Principal) sameDepartment(tgt Target) error {
	if p.DepartmentID.Valid && tgt.DepartmentID.Valid && p.DepartmentID.Int64 == tgt.DepartmentID.Int64 {
		return nil
	}
	return ErrForbidden
}
