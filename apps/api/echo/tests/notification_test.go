package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mulespace/core/notification"
)

type notificationPage struct {
	Notifications []notification.Notification `json:"notifications"`
	Total         int                         `json:"total"`
}

func Test_notificationApi(t *testing.T) {
	ta := setup(t)
	other := ta.newStudent(t, "other")
	notifs := []notification.Notification{
		{UserID: ta.student.ID, Title: "Welcome", Message: "Hello", Type: notification.TypeUpdate},
		{UserID: ta.student.ID, EventID: null.Int64From(1), Title: "Soon", Message: "Tomorrow", Type: notification.TypeReminder},
		{UserID: other.ID, Title: "Not yours", Message: "Nope", Type: notification.TypeUpdate},
	}
	require.NoError(t, ta.notifSvc.Notify(ctx, notifs...))
	token := ta.token(t, ta.student)

	query := func(t *testing.T, path string) notificationPage {
		rec := ta.serve(http.MethodGet, path, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp notificationPage
		unmarshal(t, rec, &resp)
		return resp
	}

	t.Run("auth required", func(t *testing.T) {
		rec := ta.serve(http.MethodGet, "/api/notifications", "")
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	resp := query(t, "/api/notifications")
	require.Len(t, resp.Notifications, 2)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "Soon", resp.Notifications[0].Title, "newest first")
	assert.Equal(t, "Welcome", resp.Notifications[1].Title)

	t.Run("mark read", func(t *testing.T) {
		id := resp.Notifications[0].ID
		rec := ta.serve(http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", id), token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Notification notification.Notification `json:"notification"`
		}
		unmarshal(t, rec, &body)
		assert.Equal(t, id, body.Notification.ID)
		assert.True(t, body.Notification.IsRead)

		unread := query(t, "/api/notifications?unread=true")
		require.Len(t, unread.Notifications, 1)
		assert.Equal(t, "Welcome", unread.Notifications[0].Title)
	})

	t.Run("someone else's", func(t *testing.T) {
		theirs := ta.serve(http.MethodGet, "/api/notifications", ta.token(t, other))
		var page notificationPage
		unmarshal(t, theirs, &page)
		require.Len(t, page.Notifications, 1)

		rec := ta.serve(http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", page.Notifications[0].ID), token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "notification not found"})}, rec)
	})

	t.Run("mark all read", func(t *testing.T) {
		rec := ta.serve(http.MethodPut, "/api/notifications/read-all", token)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: []byte(`{"message":"All notifications marked as read","updated":1}`),
		}, rec)

		unread := query(t, "/api/notifications?unread=true")
		assert.Empty(t, unread.Notifications)
		assert.Equal(t, 0, unread.Total)
	})
}
