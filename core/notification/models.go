package notification

import (
	"time"

	"github.com/volatiletech/null/v8"
)

type Type string

const (
	TypeEventAlert Type = "event_alert"
	TypeReminder   Type = "reminder"
	TypeUpdate     Type = "update"
)

type Notification struct {
	ID      int64      `json:"id" db:"id"`
	UserID  int64      `json:"user_id" db:"user_id"`
	EventID null.Int64 `json:"event_id" db:"event_id"`
	Title   string     `json:"title" db:"title"`
	Message string     `json:"message" db:"message"`
	Type    Type       `json:"notification_type" db:"notification_type"`
	IsRead  bool       `json:"is_read" db:"is_read"`
	SentAt  time.Time  `json:"sent_at" db:"sent_at"`
}

type QueryFilter struct {
	UserID     int64
	UnreadOnly bool
}

func (qf QueryFilter) Matches(n Notification) bool {
	return n.UserID == qf.UserID && !(qf.UnreadOnly && n.IsRead)
}
