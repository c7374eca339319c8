package inmemdb

import (
	"strings"
	"sync"

	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/department"
	"github.com/trezcool/mulespace/core/event"
	"github.com/trezcool/mulespace/core/notification"
	"github.com/trezcool/mulespace/core/user"
)

// DB is an in-process store with the same constraints as the PostgreSQL schema.
// A single lock guards every table so that multi-table reads and admissions are atomic.
type DB struct {
	mu  sync.RWMutex
	seq map[string]int64

	users         map[int64]user.User
	departments   map[int64]department.Department
	events        map[int64]event.Event
	attendance    map[int64]attendance.Attendance
	notifications map[int64]notification.Notification
}

func Open() *DB {
	return &DB{
		seq:           make(map[string]int64),
		users:         make(map[int64]user.User),
		departments:   make(map[int64]department.Department),
		events:        make(map[int64]event.Event),
		attendance:    make(map[int64]attendance.Attendance),
		notifications: make(map[int64]notification.Notification),
	}
}

// nextID must be called with the write lock held.
func (db *DB) nextID(table string) int64 {
	db.seq[table]++
	return db.seq[table]
}

// contains does a case-insensitive substring match on any of the values.
func contains(search string, values ...string) bool {
	search = strings.ToLower(search)
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), search) {
			return true
		}
	}
	return false
}
