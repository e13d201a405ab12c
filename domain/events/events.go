package events

import (
	"fmt"
	"strconv"
	"time"

	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/core/valueobjects"
)

// Push event kinds, as tagged on the websocket wire. New kinds can be added
// without touching the connection registry contract.
const (
	KindNotificationNew         = "notification.new"
	KindNotificationUnreadCount = "notification.unread_count"

	KindPodCreated  = "pod.created"
	KindPodUpdated  = "pod.updated"
	KindPodDeleted  = "pod.deleted"
	KindPodMoved    = "pod.moved"
	KindPodLocked   = "pod.locked"
	KindPodUnlocked = "pod.unlocked"

	KindEdgeCreated = "edge.created"
	KindEdgeDeleted = "edge.deleted"

	KindFlowDeleted = "flow.deleted"
)

// Event is a domain event addressed to one user's live channels. Message and
// Description feed the sender-side duplicate suppression: two events with the
// same pair inside the debounce window reach a given channel once.
type Event struct {
	Kind        string      `json:"type"`
	Message     string      `json:"-"`
	Description string      `json:"-"`
	Payload     interface{} `json:"data"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewEvent creates an event with the current timestamp
func NewEvent(kind, message, description string, payload interface{}) Event {
	return Event{
		Kind:        kind,
		Message:     message,
		Description: description,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}
}

// NotificationPayload is the wire payload of notification.new
type NotificationPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Target    string    `json:"target,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UnreadCountPayload is the wire payload of notification.unread_count
type UnreadCountPayload struct {
	Count int `json:"count"`
}

// PodPayload is the wire payload of pod.* graph mutation events
type PodPayload struct {
	PodID    string                  `json:"podId"`
	FlowID   string                  `json:"flowId"`
	Type     valueobjects.PodKind    `json:"type,omitempty"`
	Position *valueobjects.Position  `json:"position,omitempty"`
	Version  int                     `json:"version,omitempty"`
	LockedBy string                  `json:"lockedBy,omitempty"`
}

// EdgePayload is the wire payload of edge.* events
type EdgePayload struct {
	EdgeID   string `json:"edgeId"`
	FlowID   string `json:"flowId"`
	SourceID string `json:"sourceId,omitempty"`
	TargetID string `json:"targetId,omitempty"`
}

// FlowPayload is the wire payload of flow.* events
type FlowPayload struct {
	FlowID string `json:"flowId"`
}

// NewNotificationCreated builds the notification.new event for n
func NewNotificationCreated(n *entities.Notification) Event {
	return NewEvent(KindNotificationNew, n.Title, n.Body, NotificationPayload{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		Target:    n.Target,
		CreatedAt: n.CreatedAt,
	})
}

// NewUnreadCountChanged builds the notification.unread_count event. The
// count is part of the dedupe identity: only repeats of the same count are
// duplicates, a changed badge always goes out.
func NewUnreadCountChanged(count int) Event {
	return NewEvent(KindNotificationUnreadCount, "unread_count", strconv.Itoa(count), UnreadCountPayload{Count: count})
}

// NewPodEvent builds a pod.* event for p. Version and lock holder are part
// of the dedupe identity, so successive states of the same pod are distinct
// events even inside the debounce window.
func NewPodEvent(kind string, p *entities.Pod) Event {
	pos := p.Position
	return NewEvent(kind, kind, fmt.Sprintf("%s#%d#%s", p.ID, p.Version, p.LockedBy), PodPayload{
		PodID:    p.ID,
		FlowID:   p.FlowID,
		Type:     p.Type,
		Position: &pos,
		Version:  p.Version,
		LockedBy: p.LockedBy,
	})
}

// NewEdgeEvent builds an edge.* event for e
func NewEdgeEvent(kind string, e *entities.Edge) Event {
	return NewEvent(kind, kind, e.ID, EdgePayload{
		EdgeID:   e.ID,
		FlowID:   e.FlowID,
		SourceID: e.SourceID,
		TargetID: e.TargetID,
	})
}

// NewFlowDeleted builds the flow.deleted event
func NewFlowDeleted(flowID string) Event {
	return NewEvent(KindFlowDeleted, KindFlowDeleted, flowID, FlowPayload{FlowID: flowID})
}
