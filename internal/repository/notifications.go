package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cheapfinder/backend/internal/model"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateDashboardNotification stores the dashboard projection of an alert
// event. A second call for the same event returns the stored row.
func (r *NotificationRepository) CreateDashboardNotification(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (alert_event_id, title, message, read, created_at)
		VALUES ($1, $2, $3, FALSE, NOW())
		ON CONFLICT (alert_event_id) DO NOTHING
		RETURNING id, read, created_at`

	err := r.db.QueryRowxContext(ctx, query, n.AlertEventID, n.Title, n.Message).Scan(&n.ID, &n.Read, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		existing := `SELECT id, alert_event_id, title, message, read, created_at FROM notifications WHERE alert_event_id = $1`
		if err := r.db.GetContext(ctx, n, existing, n.AlertEventID); err != nil {
			return fmt.Errorf("load existing notification: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `
		SELECT id, alert_event_id, title, message, read, created_at
		FROM notifications
		WHERE ($1 = FALSE OR read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	var notifications []model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, unreadOnly, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE read = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (r *NotificationRepository) CountUnreadNotifications(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE read = FALSE`); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
