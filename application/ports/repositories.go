// Package ports defines the interfaces the application layer depends on.
// Implementations live under infrastructure/persistence.
package ports

import (
	"context"
	"time"

	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/events"
)

// Page is a pagination request over a flow partition. Cursor is the opaque
// token returned by the previous page; empty means start from the beginning.
type Page struct {
	Limit  int
	Cursor string
}

// PodPage is one page of pods plus the cursor for the next page
type PodPage struct {
	Pods       []*entities.Pod
	NextCursor string
}

// EdgePage is one page of edges plus the cursor for the next page
type EdgePage struct {
	Edges      []*entities.Edge
	NextCursor string
}

// NotificationPage is one page of notifications
type NotificationPage struct {
	Notifications []*entities.Notification
	NextCursor    string
}

// PodRepository stores pods with optimistic concurrency. Every mutating
// write carries the version the caller last observed; the store accepts only
// if the stored version still matches, then increments it atomically. A
// stale write fails with a version-conflict error and never overwrites.
type PodRepository interface {
	// Get fetches a pod by its flow partition and id
	Get(ctx context.Context, flowID, podID string) (*entities.Pod, error)

	// FindByID fetches a pod when only its id is known
	FindByID(ctx context.Context, podID string) (*entities.Pod, error)

	// Put writes pod conditionally. expectedVersion 0 creates (the pod must
	// not exist yet); otherwise the stored version must equal
	// expectedVersion. On success the returned pod carries the incremented
	// version.
	Put(ctx context.Context, pod *entities.Pod, expectedVersion int) (*entities.Pod, error)

	// Move relocates pod into targetFlowID, conditioned on expectedVersion.
	// The source item is removed and the target item written as one atomic
	// action, so the pod is never visible under two flows; the stored
	// version increments exactly as a Put would.
	Move(ctx context.Context, pod *entities.Pod, targetFlowID string, expectedVersion int) (*entities.Pod, error)

	// Delete removes a pod. Missing pods are a not-found error.
	Delete(ctx context.Context, flowID, podID string) error

	// ListByFlow pages through the pods of one flow partition
	ListByFlow(ctx context.Context, flowID string, page Page) (*PodPage, error)

	// CountByFlow returns the number of pods in a flow
	CountByFlow(ctx context.Context, flowID string) (int, error)
}

// EdgeRepository stores edges keyed by (flowID, edgeID)
type EdgeRepository interface {
	Get(ctx context.Context, flowID, edgeID string) (*entities.Edge, error)

	// Put writes edge conditionally, same contract as PodRepository.Put
	Put(ctx context.Context, edge *entities.Edge, expectedVersion int) (*entities.Edge, error)

	Delete(ctx context.Context, flowID, edgeID string) error

	ListByFlow(ctx context.Context, flowID string, page Page) (*EdgePage, error)

	// DeleteByPod removes every edge in flowID touching podID and returns
	// the removed edges, so a failed multi-step operation can restore them.
	DeleteByPod(ctx context.Context, flowID, podID string) ([]*entities.Edge, error)
}

// FlowRepository stores flow containers
type FlowRepository interface {
	Get(ctx context.Context, flowID string) (*entities.Flow, error)
	Create(ctx context.Context, flow *entities.Flow) error
	Delete(ctx context.Context, flowID string) error
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*entities.Flow, error)
}

// NotificationRepository stores per-user notification records
type NotificationRepository interface {
	Save(ctx context.Context, n *entities.Notification) error
	Get(ctx context.Context, userID, notificationID string) (*entities.Notification, error)
	Delete(ctx context.Context, userID, notificationID string) error
	ListByUser(ctx context.Context, userID string, page Page) (*NotificationPage, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// PodLockStore persists the advisory lock annotation on a pod. Acquire uses
// a conditional write: it succeeds when the pod is unlocked, already held by
// holder, or the existing lock is older than staleBefore.
type PodLockStore interface {
	Acquire(ctx context.Context, podID, holder string, staleBefore, now time.Time) error
	Release(ctx context.Context, podID, holder string) error
}

// EventPublisher pushes a domain event to every live channel of one user.
// Delivery is at-least-once, best-effort; implementations must not block on
// slow or dead channels.
type EventPublisher interface {
	Publish(userID string, event events.Event)
}
