package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cheapfinder/backend/internal/apperror"
	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/repository"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationStore is the dashboard notification persistence.
type NotificationStore interface {
	ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) (int64, error)
	CountUnreadNotifications(ctx context.Context) (int, error)
}

// NotificationService handles dashboard notifications
type NotificationService struct {
	store NotificationStore
}

// NewNotificationService creates a new notification service
func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// List returns the newest notifications first. A non-positive limit uses the
// default and large limits are capped.
func (s *NotificationService) List(ctx context.Context, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	notifications, err := s.store.ListNotifications(ctx, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	return notifications, nil
}

// MarkRead marks one notification as read
func (s *NotificationService) MarkRead(ctx context.Context, id int64) error {
	err := s.store.MarkNotificationRead(ctx, id)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return apperror.NotFound("notification")
	}
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification as read and returns how many
// changed.
func (s *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context) (int, error) {
	n, err := s.store.CountUnreadNotifications(ctx)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}
