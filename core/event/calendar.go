package event

import (
	"context"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core"
)

var calendarColors = [...]string{
	"#3788d8", "#e74c3c", "#2ecc71", "#f39c12",
	"#9b59b6", "#1abc9c", "#e67e22", "#34495e",
}

// CalendarEntry is the shape expected by calendar widgets.
type CalendarEntry struct {
	ID              int64         `json:"id"`
	Title           string        `json:"title"`
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	URL             string        `json:"url"`
	BackgroundColor string        `json:"backgroundColor"`
	BorderColor     string        `json:"borderColor"`
	ExtendedProps   calendarProps `json:"extendedProps"`
}

type calendarProps struct {
	Location   null.String `json:"location"`
	Department string      `json:"department"`
	Capacity   null.Int64  `json:"capacity"`
	Registered int         `json:"registered"`
}

// DepartmentColor picks a stable color for a department.
func DepartmentColor(deptID int64) string {
	if deptID < 0 {
		deptID = -deptID
	}
	return calendarColors[deptID%int64(len(calendarColors))]
}

func (e Event) CalendarEntry() CalendarEntry {
	color := DepartmentColor(e.DepartmentID)
	return CalendarEntry{
		ID:              e.ID,
		Title:           e.Title,
		Start:           e.StartTime,
		End:             e.EndTime,
		URL:             fmt.Sprintf("/events/%d", e.ID),
		BackgroundColor: color,
		BorderColor:     color,
		ExtendedProps: calendarProps{
			Location:   e.Location,
			Department: e.DepartmentName,
			Capacity:   e.Capacity,
			Registered: e.AttendanceCount,
		},
	}
}

// Calendar returns the active events overlapping [from, to), optionally limited to one department (deptID > 0).
func (svc *service) Calendar(ctx context.Context, from, to time.Time, deptID int64) ([]CalendarEntry, error) {
	filter := &QueryFilter{From: from.UTC(), To: to.UTC(), Overlap: true}
	if deptID > 0 {
		filter.DepartmentID = null.Int64From(deptID)
	}
	evts, _, err := svc.Repo.QueryEvents(ctx, filter, core.Page{})
	if err != nil {
		return nil, err
	}
	entries := make([]CalendarEntry, 0, len(evts))
	for _, ev := range evts {
		entries = append(entries, ev.CalendarEntry())
	}
	return entries, nil
}
