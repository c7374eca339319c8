package analytics

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Dashboard holds the headline numbers, global or for a single department.
type Dashboard struct {
	TotalUsers       int `json:"total_users"`
	TotalStudents    int `json:"total_students"`
	TotalDepartments int `json:"total_departments"`
	TotalEvents      int `json:"total_events"`
	ActiveEvents     int `json:"active_events"`
	UpcomingEvents   int `json:"upcoming_events"`
	TotalAttendance  int `json:"total_attendance"`
}

type EventStat struct {
	ID              int64        `json:"id" db:"id"`
	Title           string       `json:"title" db:"title"`
	StartTime       time.Time    `json:"start_time" db:"start_time"`
	Department      string       `json:"department" db:"department"`
	MaxCapacity     null.Int64   `json:"max_capacity" db:"max_capacity"`
	AttendanceCount int          `json:"attendance_count" db:"attendance_count"`
	FillRate        null.Float64 `json:"fill_rate" db:"-"`
}

// computeFillRate sets FillRate as a percentage of the capacity, rounded to one decimal.
func (s *EventStat) computeFillRate() {
	if !s.MaxCapacity.Valid || s.MaxCapacity.Int64 <= 0 {
		s.FillRate = null.Float64{}
		return
	}
	rate := float64(s.AttendanceCount) * 100 / float64(s.MaxCapacity.Int64)
	s.FillRate = null.Float64From(float64(int64(rate*10+0.5)) / 10)
}

type DepartmentStat struct {
	ID              int64  `json:"id" db:"id"`
	Name            string `json:"name" db:"name"`
	UserCount       int    `json:"user_count" db:"user_count"`
	EventCount      int    `json:"event_count" db:"event_count"`
	AttendanceCount int    `json:"attendance_count" db:"attendance_count"`
}
