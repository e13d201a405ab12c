package memory

import (
	"context"
	"sort"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	pkgerrors "flopods-backend/pkg/errors"
)

// NotificationStore implements ports.NotificationRepository over the shared store
type NotificationStore struct {
	store *Store
}

// Save upserts a notification
func (r *NotificationStore) Save(ctx context.Context, n *entities.Notification) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.notifications[n.UserID] == nil {
		r.store.notifications[n.UserID] = make(map[string]*entities.Notification)
	}
	r.store.notifications[n.UserID][n.ID] = n.Clone()
	return nil
}

// Get fetches a notification by user and id
func (r *NotificationStore) Get(ctx context.Context, userID, id string) (*entities.Notification, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	n, ok := r.store.notifications[userID][id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("notification")
	}
	return n.Clone(), nil
}

// Delete removes a notification
func (r *NotificationStore) Delete(ctx context.Context, userID, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.notifications[userID][id]; !ok {
		return pkgerrors.NewNotFoundError("notification")
	}
	delete(r.store.notifications[userID], id)
	return nil
}

// ListByUser pages through a user's notifications, newest first
func (r *NotificationStore) ListByUser(ctx context.Context, userID string, page ports.Page) (*ports.NotificationPage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all := make([]*entities.Notification, 0, len(r.store.notifications[userID]))
	for _, n := range r.store.notifications[userID] {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	limit := page.Limit
	if limit <= 0 {
		limit = len(all)
	}

	result := &ports.NotificationPage{}
	skipping := page.Cursor != ""
	for _, n := range all {
		if skipping {
			if n.ID == page.Cursor {
				skipping = false
			}
			continue
		}
		if len(result.Notifications) == limit {
			result.NextCursor = result.Notifications[len(result.Notifications)-1].ID
			break
		}
		result.Notifications = append(result.Notifications, n.Clone())
	}
	return result, nil
}

// CountUnread returns the number of unread notifications for a user
func (r *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := 0
	for _, n := range r.store.notifications[userID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// MarkAllRead marks every notification for a user as read and returns how
// many changed state
func (r *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	changed := 0
	for _, n := range r.store.notifications[userID] {
		if !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}
