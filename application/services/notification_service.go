package services

import (
	"context"

	"go.uber.org/zap"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/events"
)

// NotificationService manages per-user notifications and pushes both the
// notification itself and the changed unread count to the user's live
// sessions.
type NotificationService struct {
	notifications ports.NotificationRepository
	publisher     ports.EventPublisher
	logger        *zap.Logger
}

// NewNotificationService wires a notification service
func NewNotificationService(
	notifications ports.NotificationRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
	}
}

// Create stores a notification and pushes it to the user
func (s *NotificationService) Create(ctx context.Context, userID string, nType entities.NotificationType, title, body, target string) (*entities.Notification, error) {
	n, err := entities.NewNotification(userID, nType, title, body, target)
	if err != nil {
		return nil, err
	}
	if err := s.notifications.Save(ctx, n); err != nil {
		return nil, err
	}

	s.logger.Info("notification created",
		zap.String("notification_id", n.ID),
		zap.String("user_id", userID),
		zap.String("type", string(nType)))

	s.publisher.Publish(userID, events.NewNotificationCreated(n))
	s.publishUnreadCount(ctx, userID)
	return n, nil
}

// MarkRead marks one notification as read
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	n, err := s.notifications.Get(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}

	n.MarkRead()
	if err := s.notifications.Save(ctx, n); err != nil {
		return err
	}

	s.publishUnreadCount(ctx, userID)
	return nil
}

// MarkAllRead marks every notification of the user as read
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	changed, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return err
	}
	if changed > 0 {
		s.publishUnreadCount(ctx, userID)
	}
	return nil
}

// Delete removes a notification
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	n, err := s.notifications.Get(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if err := s.notifications.Delete(ctx, userID, notificationID); err != nil {
		return err
	}
	if !n.Read {
		s.publishUnreadCount(ctx, userID)
	}
	return nil
}

// List pages through the user's notifications, newest first
func (s *NotificationService) List(ctx context.Context, userID string, page ports.Page) (*ports.NotificationPage, error) {
	return s.notifications.ListByUser(ctx, userID, page)
}

// UnreadCount returns the user's unread notification count
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

func (s *NotificationService) publishUnreadCount(ctx context.Context, userID string) {
	count, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to count unread notifications",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	s.publisher.Publish(userID, events.NewUnreadCountChanged(count))
}
