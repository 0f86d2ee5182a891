package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapfinder/backend/internal/model"
)

var notificationRowColumns = []string{"id", "alert_event_id", "title", "message", "read", "created_at"}

func TestNotificationRepository_CreateDashboardNotification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantID    int64
		wantRead  bool
	}{
		{
			name: "new notification",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications .* ON CONFLICT \(alert_event_id\) DO NOTHING`).
					WithArgs(int64(5), "Price drop: Beta Jacket", "msg").
					WillReturnRows(sqlmock.NewRows([]string{"id", "read", "created_at"}).AddRow(1, false, time.Now()))
			},
			wantID: 1,
		},
		{
			name: "already exists",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(`FROM notifications WHERE alert_event_id = \$1`).
					WithArgs(int64(5)).
					WillReturnRows(sqlmock.NewRows(notificationRowColumns).
						AddRow(1, 5, "Price drop: Beta Jacket", "msg", true, time.Now()))
			},
			wantID:   1,
			wantRead: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, mock := newMockDB(t)
			defer func() { _ = db.Close() }()
			repo := NewNotificationRepository(db)
			tt.setupMock(mock)

			n := &model.Notification{AlertEventID: 5, Title: "Price drop: Beta Jacket", Message: "msg"}
			err := repo.CreateDashboardNotification(context.Background(), n)

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, n.ID)
			assert.Equal(t, tt.wantRead, n.Read)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestNotificationRepository_ListNotifications(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(`FROM notifications\s+WHERE \(\$1 = FALSE OR read = FALSE\)`).
		WithArgs(true, 20).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns).
			AddRow(2, 6, "Price drop: Atom Hoody", "msg", false, time.Now()))

	list, err := repo.ListNotifications(context.Background(), true, 20)

	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(6), list[0].AlertEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	defer func() { _ = db.Close() }()
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE notifications SET read = TRUE WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE notifications SET read = TRUE WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE notifications SET read = TRUE WHERE read = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications WHERE read = FALSE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	assert.NoError(t, repo.MarkNotificationRead(ctx, 2))
	assert.ErrorIs(t, repo.MarkNotificationRead(ctx, 3), ErrNotificationNotFound)

	n, err := repo.MarkAllNotificationsRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	unread, err := repo.CountUnreadNotifications(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)
	assert.NoError(t, mock.ExpectationsWereMet())
}
