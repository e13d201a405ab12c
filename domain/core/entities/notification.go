package entities

import (
	"time"

	"flopods-backend/domain/core/valueobjects"
	pkgerrors "flopods-backend/pkg/errors"
)

// NotificationType tags a notification for client-side rendering
type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
)

// Notification is an event record owned by one user. Only its read flag
// mutates after creation.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body,omitempty"`
	Read      bool             `json:"read"`
	Target    string           `json:"target,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewNotification creates an unread notification for userID
func NewNotification(userID string, nType NotificationType, title, body, target string) (*Notification, error) {
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userId cannot be empty")
	}
	if title == "" {
		return nil, pkgerrors.NewValidationError("notification title cannot be empty")
	}

	return &Notification{
		ID:        valueobjects.NewID(),
		UserID:    userID,
		Type:      nType,
		Title:     title,
		Body:      body,
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// MarkRead flips the read flag
func (n *Notification) MarkRead() {
	n.Read = true
}

// MarkUnread clears the read flag
func (n *Notification) MarkUnread() {
	n.Read = false
}

// Clone returns a copy of the notification
func (n *Notification) Clone() *Notification {
	clone := *n
	return &clone
}
