package tests

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core/analytics"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/user"
	"github.com/trezcool/mulespace/tests"
)

func Test_adminApi_dashboard(t *testing.T) {
	ta := setup(t)
	ev := ta.newEvent(t, "Hackathon", ta.dept.ID, null.Int64From(4))
	ta.newEvent(t, "Algebra talk", ta.otherDept.ID, null.Int64{})
	rec := ta.serve(http.MethodPost, "/api/attendance/check-in", ta.token(t, ta.student), checkIn(t, ev.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []httpTest{
		{name: "auth required", path: "/api/admin/dashboard", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students are kept out", path: "/api/admin/dashboard", token: ta.token(t, ta.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "admin sees everything", path: "/api/admin/dashboard", token: ta.token(t, ta.admin), wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]analytics.Dashboard{"stats": {
				TotalUsers: 3, TotalStudents: 1, TotalDepartments: 2,
				TotalEvents: 2, ActiveEvents: 2, UpcomingEvents: 2, TotalAttendance: 1,
			}}),
		},
		{
			name: "admin narrows to a department", path: fmt.Sprintf("/api/admin/dashboard?department_id=%d", ta.otherDept.ID),
			token: ta.token(t, ta.admin), wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]analytics.Dashboard{"stats": {
				TotalDepartments: 1, TotalEvents: 1, ActiveEvents: 1, UpcomingEvents: 1,
			}}),
		},
		{
			name: "department admins are scoped to their department", path: fmt.Sprintf("/api/admin/dashboard?department_id=%d", ta.otherDept.ID),
			token: ta.token(t, ta.deptAdmin), wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]analytics.Dashboard{"stats": {
				TotalUsers: 2, TotalStudents: 1, TotalDepartments: 1,
				TotalEvents: 1, ActiveEvents: 1, UpcomingEvents: 1, TotalAttendance: 1,
			}}),
		},
	}
	runHTTPTests(t, ta, tests)

	t.Run("department admin without department", func(t *testing.T) {
		orphan := testutil.CreateUser(t, ta.usrRepo, "Or", "Phan", "orphan", "orphan@campus.test", user.RoleDepartmentAdmin, null.Int64{}, true)
		rec := ta.serve(http.MethodGet, "/api/admin/dashboard", ta.token(t, orphan))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
}

func Test_adminApi_analytics(t *testing.T) {
	ta := setup(t)
	ev := ta.newEvent(t, "Hackathon", ta.dept.ID, null.Int64From(4))
	foreign := ta.newEvent(t, "Algebra talk", ta.otherDept.ID, null.Int64{})
	rec := ta.serve(http.MethodPost, "/api/attendance/check-in", ta.token(t, ta.student), checkIn(t, ev.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	eventStats := func(t *testing.T, token string) []analytics.EventStat {
		rec := ta.serve(http.MethodGet, "/api/admin/analytics/events", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Analytics []analytics.EventStat `json:"analytics"`
		}
		unmarshal(t, rec, &resp)
		return resp.Analytics
	}

	t.Run("events (admin)", func(t *testing.T) {
		stats := eventStats(t, ta.token(t, ta.admin))
		require.Len(t, stats, 2)
		ids := []int64{stats[0].ID, stats[1].ID}
		assert.ElementsMatch(t, []int64{ev.ID, foreign.ID}, ids)
	})

	t.Run("events (department admin)", func(t *testing.T) {
		stats := eventStats(t, ta.token(t, ta.deptAdmin))
		require.Len(t, stats, 1)
		assert.Equal(t, ev.ID, stats[0].ID)
		assert.Equal(t, 1, stats[0].AttendanceCount)
		assert.Equal(t, null.Float64From(25), stats[0].FillRate)
	})

	t.Run("departments", func(t *testing.T) {
		rec := ta.serve(http.MethodGet, "/api/admin/analytics/departments", ta.token(t, ta.deptAdmin))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)

		rec = ta.serve(http.MethodGet, "/api/admin/analytics/departments", ta.token(t, ta.admin))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string][]analytics.DepartmentStat{"analytics": {
				{ID: ta.dept.ID, Name: ta.dept.Name, UserCount: 2, EventCount: 1, AttendanceCount: 1},
				{ID: ta.otherDept.ID, Name: ta.otherDept.Name, UserCount: 0, EventCount: 1, AttendanceCount: 0},
			}}),
		}, rec)
	})
}

func Test_adminApi_queryUsers(t *testing.T) {
	ta := setup(t)
	naughty := testutil.CreateUser(t, ta.usrRepo, "N", "Dog", "ndog", "ndog@campus.test", user.RoleStudent, null.Int64From(ta.otherDept.ID), false)
	adminToken := ta.token(t, ta.admin)

	path := func(params ...string) string {
		v := make(url.Values)
		for i := 0; i+1 < len(params); i += 2 {
			v.Add(params[i], params[i+1])
		}
		return "/api/admin/users?" + v.Encode()
	}
	ids := func(users []user.User) []int64 {
		res := make([]int64, 0, len(users))
		for _, u := range users {
			res = append(res, u.ID)
		}
		return res
	}

	t.Run("admin required", func(t *testing.T) {
		rec := ta.serve(http.MethodGet, "/api/admin/users", ta.token(t, ta.deptAdmin))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	tests := []struct {
		name    string
		path    string
		wantIDs []int64
	}{
		{name: "all", path: "/api/admin/users", wantIDs: []int64{ta.admin.ID, ta.deptAdmin.ID, ta.student.ID, naughty.ID}},
		{name: "search (unknown)", path: path("search", "lol"), wantIDs: []int64{}},
		{name: "search", path: path("search", "DOG"), wantIDs: []int64{naughty.ID}},
		{name: "role (unknown)", path: path("role", "lol"), wantIDs: []int64{}},
		{name: "role=student", path: path("role", "student"), wantIDs: []int64{ta.student.ID, naughty.ID}},
		{
			name: "role=admin,department_admin", path: path("role", "admin", "role", "department_admin"),
			wantIDs: []int64{ta.admin.ID, ta.deptAdmin.ID},
		},
		{name: "is_active=false", path: path("is_active", "false"), wantIDs: []int64{naughty.ID}},
		{name: "department", path: path("department_id", fmt.Sprint(ta.otherDept.ID)), wantIDs: []int64{naughty.ID}},
		{name: "ordering", path: path("ordering", "-username"), wantIDs: []int64{ta.student.ID, naughty.ID, ta.deptAdmin.ID, ta.admin.ID}},
		{name: "paginated", path: path("per_page", "3", "page", "2"), wantIDs: []int64{naughty.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ta.serve(http.MethodGet, tt.path, adminToken)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp struct {
				Users []user.User `json:"users"`
			}
			unmarshal(t, rec, &resp)
			assert.Equal(t, tt.wantIDs, ids(resp.Users))
		})
	}
}

func Test_adminApi_queryRoles(t *testing.T) {
	ta := setup(t)

	rec := ta.serve(http.MethodGet, "/api/admin/users/roles", ta.token(t, ta.admin))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)}, rec)
}

func Test_adminApi_updateUser(t *testing.T) {
	ta := setup(t)
	adminToken := ta.token(t, ta.admin)
	studentPath := fmt.Sprintf("/api/admin/users/%d", ta.student.ID)
	selfPath := fmt.Sprintf("/api/admin/users/%d", ta.admin.ID)

	tests := []httpTest{
		{
			name: "admin required", method: http.MethodPut, path: studentPath, body: []byte(`{"is_active":false}`),
			token: ta.token(t, ta.deptAdmin), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown user", method: http.MethodPut, path: "/api/admin/users/404", body: []byte(`{"is_active":false}`),
			token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "invalid role", method: http.MethodPut, path: studentPath, body: []byte(`{"role":"overlord"}`),
			token: adminToken, wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": "invalid role"}),
		},
		{
			name: "cannot demote self", method: http.MethodPut, path: selfPath, body: []byte(`{"role":"student"}`),
			token: adminToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "cannot deactivate self", method: http.MethodPut, path: selfPath, body: []byte(`{"is_active":false}`),
			token: adminToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown department", method: http.MethodPut, path: studentPath, body: []byte(`{"department_id":404}`),
			token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"department_id": "department not found"}),
		},
	}
	runHTTPTests(t, ta, tests)

	t.Run("promote", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"role": user.RoleDepartmentAdmin, "department_id": ta.otherDept.ID})
		rec := ta.serve(http.MethodPut, studentPath, adminToken, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Message string    `json:"message"`
			User    user.User `json:"user"`
		}
		unmarshal(t, rec, &resp)
		assert.Equal(t, "User updated successfully", resp.Message)
		assert.Equal(t, user.RoleDepartmentAdmin, resp.User.Role)
		assert.Equal(t, null.Int64From(ta.otherDept.ID), resp.User.DepartmentID)

		// the new role applies to the existing token
		rec = ta.serve(http.MethodGet, "/api/admin/dashboard", ta.token(t, ta.student))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("deactivate", func(t *testing.T) {
		rec := ta.serve(http.MethodPut, studentPath, adminToken, []byte(`{"is_active":false}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ta.serve(http.MethodGet, "/api/auth/me", ta.token(t, ta.student))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})}, rec)
	})
}

func Test_adminApi_departments(t *testing.T) {
	ta := setup(t)
	adminToken := ta.token(t, ta.admin)
	ta.newEvent(t, "Hackathon", ta.dept.ID, null.Int64{})

	tests := []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: "/api/admin/departments", body: []byte(`{"name":"Physics"}`),
			token: ta.token(t, ta.deptAdmin), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "name required", method: http.MethodPost, path: "/api/admin/departments", body: []byte(`{}`),
			token: adminToken, wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "name taken", method: http.MethodPost, path: "/api/admin/departments", body: []byte(`{"name":"Mathematics"}`),
			token: adminToken, wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "a department with this name already exists"}),
		},
		{
			name: "in use", method: http.MethodDelete, path: fmt.Sprintf("/api/admin/departments/%d", ta.dept.ID),
			token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "cannot delete a department that still has users or events"}),
		},
		{
			name: "unknown department", method: http.MethodDelete, path: "/api/admin/departments/404",
			token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "department not found"}),
		},
		{
			name: "delete", method: http.MethodDelete, path: fmt.Sprintf("/api/admin/departments/%d", ta.otherDept.ID),
			token: adminToken, wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]string{"message": "Department deleted successfully"}),
		},
	}
	runHTTPTests(t, ta, tests)

	var created department.Department
	t.Run("create", func(t *testing.T) {
		body := marchallObj(t, department.NewDepartment{Name: "  Physics ", ContactEmail: "Physics@Campus.test"})
		rec := ta.serve(http.MethodPost, "/api/admin/departments", adminToken, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			Message    string                `json:"message"`
			Department department.Department `json:"department"`
		}
		unmarshal(t, rec, &resp)
		assert.Equal(t, "Department created successfully", resp.Message)
		assert.Equal(t, "Physics", resp.Department.Name)
		assert.Equal(t, null.StringFrom("physics@campus.test"), resp.Department.ContactEmail)
		created = resp.Department
	})

	t.Run("update", func(t *testing.T) {
		require.NotZero(t, created.ID)
		rec := ta.serve(http.MethodPut, fmt.Sprintf("/api/admin/departments/%d", created.ID), adminToken, []byte(`{"description":"Stars & atoms"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Department department.Department `json:"department"`
		}
		unmarshal(t, rec, &resp)
		assert.Equal(t, "Physics", resp.Department.Name)
		assert.Equal(t, null.StringFrom("Stars & atoms"), resp.Department.Description)
	})

	t.Run("public listing", func(t *testing.T) {
		rec := ta.serve(http.MethodGet, "/api/auth/departments", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Departments []department.Department `json:"departments"`
		}
		unmarshal(t, rec, &resp)
		names := make([]string, 0, len(resp.Departments))
		for _, d := range resp.Departments {
			names = append(names, d.Name)
		}
		assert.ElementsMatch(t, []string{ta.dept.Name, "Physics"}, names)
	})
}
