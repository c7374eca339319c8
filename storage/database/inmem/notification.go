package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, notifs ...notification.Notification) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, n := range notifs {
		n.ID = repo.db.nextID("notifications")
		repo.db.notifications[n.ID] = n
	}
	return nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, filter notification.QueryFilter, page core.Page) ([]notification.Notification, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if filter.Matches(n) {
			notifs = append(notifs, n)
		}
	}
	sort.Slice(notifs, func(i, j int) bool {
		if notifs[i].SentAt.Equal(notifs[j].SentAt) {
			return notifs[i].ID > notifs[j].ID
		}
		return notifs[i].SentAt.After(notifs[j].SentAt)
	})
	start, end := page.Slice(len(notifs))
	return notifs[start:end], len(notifs), nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, id, userID int64) (notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok || n.UserID != userID {
		return notification.Notification{}, notification.ErrNotFound
	}
	n.IsRead = true
	repo.db.notifications[id] = n
	return n, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID int64) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	count := 0
	for id, n := range repo.db.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			repo.db.notifications[id] = n
			count++
		}
	}
	return count, nil
}
