package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/notification"
)

const notificationColumns = `n.id, n.user_id, n.event_id, n.title, n.message, n.notification_type, n.is_read, n.sent_at`

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) CreateNotifications(ctx context.Context, notifs ...notification.Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	const q = `INSERT INTO notifications (user_id, event_id, title, message, notification_type, is_read, sent_at)
		VALUES (:user_id, :event_id, :title, :message, :notification_type, :is_read, :sent_at)`

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx, q)
	if err != nil {
		return errors.Wrap(err, "preparing notification insert")
	}
	defer func() { _ = stmt.Close() }()
	for _, n := range notifs {
		if _, err = stmt.ExecContext(ctx, n); err != nil {
			return errors.Wrap(err, "inserting notification")
		}
	}
	return errors.Wrap(tx.Commit(), "committing notifications")
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, filter notification.QueryFilter, page core.Page) ([]notification.Notification, int, error) {
	var w where
	w.add("n.user_id = ?", filter.UserID)
	if filter.UnreadOnly {
		w.add("n.is_read = FALSE")
	}

	notifs := make([]notification.Notification, 0)
	total, err := selectPage(ctx, repo.db, &notifs, notificationColumns, "FROM notifications n", w, " ORDER BY n.sent_at DESC, n.id DESC", page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying notifications")
	}
	return notifs, total, nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, id, userID int64) (notification.Notification, error) {
	var n notification.Notification
	err := repo.db.GetContext(ctx, &n,
		"UPDATE notifications n SET is_read = TRUE WHERE n.id = $1 AND n.user_id = $2 RETURNING "+notificationColumns,
		id, userID)
	if err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "marking notification read")
	}
	return n, nil
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, userID int64) (int, error) {
	res, err := repo.db.ExecContext(ctx, "UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE", userID)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "marking notifications read")
}
