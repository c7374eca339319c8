package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core/user"
)

func TestAuthorize(t *testing.T) {
	admin := &Principal{UserID: 1, Role: user.RoleAdmin}
	deptA := &Principal{UserID: 2, Role: user.RoleDepartmentAdmin, DepartmentID: null.Int64From(10)}
	orphan := &Principal{UserID: 3, Role: user.RoleDepartmentAdmin}
	student := &Principal{UserID: 4, Role: user.RoleStudent, DepartmentID: null.Int64From(10)}
	bogus := &Principal{UserID: 5, Role: user.Role("superuser")}

	inA := InDepartment(10)
	inB := InDepartment(20)

	tests := []struct {
		name string
		p    *Principal
		act  Action
		tgt  Target
		want error
	}{
		{name: "anonymous reads catalog", act: ReadCatalog, tgt: inA},
		{name: "anonymous registers", act: Register, tgt: OwnedBy(0, 10), want: ErrUnauthenticated},
		{name: "anonymous manages event", act: ManageEvent, tgt: inA, want: ErrUnauthenticated},

		{name: "admin manages any event", p: admin, act: ManageEvent, tgt: inB},
		{name: "admin manages departments", p: admin, act: ManageDepartments},
		{name: "admin deletes others attendance", p: admin, act: ManageAttendance, tgt: OwnedBy(4, 20)},

		{name: "dept admin manages own department event", p: deptA, act: ManageEvent, tgt: inA},
		{name: "dept admin manages other department event", p: deptA, act: ManageEvent, tgt: inB, want: ErrForbidden},
		{name: "dept admin views own attendees", p: deptA, act: ViewAttendees, tgt: inA},
		{name: "dept admin views other attendees", p: deptA, act: ViewAttendees, tgt: inB, want: ErrForbidden},
		{name: "dept admin bulk check-in own department", p: deptA, act: ManageAttendance, tgt: inA},
		{name: "dept admin deletes attendance in other department", p: deptA, act: ManageAttendance, tgt: OwnedBy(4, 20), want: ErrForbidden},
		{name: "dept admin unregisters self elsewhere", p: deptA, act: ManageAttendance, tgt: OwnedBy(2, 20)},
		{name: "dept admin registers self", p: deptA, act: Register, tgt: OwnedBy(2, 20)},
		{name: "dept admin registers someone else", p: deptA, act: Register, tgt: OwnedBy(4, 10), want: ErrForbidden},
		{name: "dept admin manages users", p: deptA, act: ManageUsers, want: ErrForbidden},
		{name: "dept admin manages departments", p: deptA, act: ManageDepartments, tgt: inA, want: ErrForbidden},
		{name: "dept admin analytics", p: deptA, act: ViewAnalytics, tgt: inA},
		{name: "dept admin target without department", p: deptA, act: ManageEvent, tgt: Target{}, want: ErrForbidden},

		{name: "dept admin without department", p: orphan, act: ManageEvent, tgt: inA, want: ErrForbidden},
		{name: "dept admin without department analytics", p: orphan, act: ViewAnalytics, tgt: Target{DepartmentID: orphan.DepartmentID}, want: ErrForbidden},

		{name: "student reads catalog", p: student, act: ReadCatalog, tgt: inB},
		{name: "student registers self", p: student, act: Register, tgt: OwnedBy(4, 20)},
		{name: "student registers someone else", p: student, act: Register, tgt: OwnedBy(7, 10), want: ErrForbidden},
		{name: "student deletes own attendance", p: student, act: ManageAttendance, tgt: OwnedBy(4, 10)},
		{name: "student deletes others attendance", p: student, act: ManageAttendance, tgt: OwnedBy(7, 10), want: ErrForbidden},
		{name: "student manages event in own department", p: student, act: ManageEvent, tgt: inA, want: ErrForbidden},
		{name: "student views attendees", p: student, act: ViewAttendees, tgt: inA, want: ErrForbidden},

		{name: "unknown role", p: bogus, act: ManageEvent, tgt: inA, want: ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.p, tt.act, tt.tgt))
		})
	}
}

func TestAuthorize_departmentScopingIsSymmetric(t *testing.T) {
	mutating := []Action{ManageEvent, ViewAttendees, ManageAttendance}
	for a := int64(1); a <= 3; a++ {
		p := &Principal{UserID: 100, Role: user.RoleDepartmentAdmin, DepartmentID: null.Int64From(a)}
		for b := int64(1); b <= 3; b++ {
			for _, act := range mutating {
				err := Authorize(p, act, InDepartment(b))
				if a == b {
					assert.NoError(t, err, "dept %d -> %d (%s)", a, b, act)
				} else {
					assert.Equal(t, ErrForbidden, err, "dept %d -> %d (%s)", a, b, act)
				}
			}
		}
	}
}
