package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
)

var ErrNotFound = errors.New("notification not found")

type (
	Repository interface {
		CreateNotifications(ctx context.Context, notifs ...Notification) error
		// QueryNotifications returns the requested page, newest first, and the total count.
		QueryNotifications(ctx context.Context, filter QueryFilter, page core.Page) ([]Notification, int, error)
		// MarkRead returns ErrNotFound when the notification does not belong to userID.
		MarkRead(ctx context.Context, id, userID int64) (Notification, error)
		MarkAllRead(ctx context.Context, userID int64) (int, error)
	}

	Service interface {
		Notify(ctx context.Context, notifs ...Notification) error
		Query(ctx context.Context, filter QueryFilter, page core.Page) ([]Notification, int, error)
		MarkRead(ctx context.Context, id, userID int64) (Notification, error)
		MarkAllRead(ctx context.Context, userID int64) (int, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Notify(ctx context.Context, notifs ...Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range notifs {
		if notifs[i].Type == "" {
			notifs[i].Type = TypeEventAlert
		}
		notifs[i].IsRead = false
		notifs[i].SentAt = now
	}
	if err := svc.repo.CreateNotifications(ctx, notifs...); err != nil {
		return errors.Wrap(err, "creating notifications")
	}
	return nil
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, page core.Page) ([]Notification, int, error) {
	return svc.repo.QueryNotifications(ctx, filter, page)
}

func (svc *service) MarkRead(ctx context.Context, id, userID int64) (Notification, error) {
	return svc.repo.MarkRead(ctx, id, userID)
}

func (svc *service) MarkAllRead(ctx context.Context, userID int64) (int, error) {
	return svc.repo.MarkAllRead(ctx, userID)
}
