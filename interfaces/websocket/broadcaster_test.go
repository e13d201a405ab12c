package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/core/valueobjects"
	"flopods-backend/domain/events"
	"flopods-backend/pkg/observability"
)

type broadcasterFixture struct {
	hub    *Hub
	b      *Broadcaster
	client *Client
	clock  time.Time
}

func newBroadcasterFixture() *broadcasterFixture {
	metrics := observability.NewCollector("test")
	hub := NewHub(metrics, zap.NewNop())
	b := NewBroadcaster(hub, DefaultDebounceWindow, metrics, zap.NewNop())

	f := &broadcasterFixture{hub: hub, b: b, clock: time.Now()}
	b.now = func() time.Time { return f.clock }

	f.client = newTestClient("user-1", hub)
	hub.registerClient(f.client)
	return f
}

// publish runs one publish and drains the hub's queue synchronously
func (f *broadcasterFixture) publish(userID string, event events.Event) {
	f.b.Publish(userID, event)
	for {
		select {
		case msg := <-f.hub.broadcast:
			f.hub.broadcastToUser(msg)
		default:
			return
		}
	}
}

func (f *broadcasterFixture) frames(c *Client) []string {
	var out []string
	for {
		select {
		case data := <-c.send:
			out = append(out, string(data))
		default:
			return out
		}
	}
}

func TestBroadcaster_DuplicateWithinWindowIsSuppressed(t *testing.T) {
	f := newBroadcasterFixture()
	event := events.NewEvent("pod.updated", "pod.updated", "pod-1", nil)

	f.publish("user-1", event)
	f.publish("user-1", event)

	assert.Len(t, f.frames(f.client), 1)
}

func TestBroadcaster_DuplicateAfterWindowIsDelivered(t *testing.T) {
	f := newBroadcasterFixture()
	event := events.NewEvent("pod.updated", "pod.updated", "pod-1", nil)

	f.publish("user-1", event)
	f.clock = f.clock.Add(DefaultDebounceWindow + time.Millisecond)
	f.publish("user-1", event)

	assert.Len(t, f.frames(f.client), 2)
}

func TestBroadcaster_DifferentDescriptionsAreNotDuplicates(t *testing.T) {
	f := newBroadcasterFixture()

	f.publish("user-1", events.NewEvent("pod.updated", "pod.updated", "pod-1", nil))
	f.publish("user-1", events.NewEvent("pod.updated", "pod.updated", "pod-2", nil))

	assert.Len(t, f.frames(f.client), 2)
}

func TestBroadcaster_DedupeIsPerUser(t *testing.T) {
	f := newBroadcasterFixture()
	other := newTestClient("user-2", f.hub)
	f.hub.registerClient(other)

	event := events.NewEvent("pod.updated", "pod.updated", "pod-1", nil)
	f.publish("user-1", event)
	f.publish("user-2", event)

	assert.Len(t, f.frames(f.client), 1)
	assert.Len(t, f.frames(other), 1)
}

func TestBroadcaster_ChangedUnreadCountIsDelivered(t *testing.T) {
	f := newBroadcasterFixture()

	f.publish("user-1", events.NewUnreadCountChanged(5))
	f.publish("user-1", events.NewUnreadCountChanged(4))
	f.publish("user-1", events.NewUnreadCountChanged(4))

	frames := f.frames(f.client)
	require.Len(t, frames, 2)

	var decoded struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[1]), &decoded))
	assert.Equal(t, 4, decoded.Data.Count)
}

func TestBroadcaster_SuccessivePodVersionsAreDelivered(t *testing.T) {
	f := newBroadcasterFixture()

	pod, err := entities.NewPod("flow-1", "ws-1", "user-1",
		valueobjects.NewTextContent("v1"), valueobjects.Position{})
	require.NoError(t, err)

	pod.Version = 2
	f.publish("user-1", events.NewPodEvent(events.KindPodUpdated, pod))
	pod.Version = 3
	f.publish("user-1", events.NewPodEvent(events.KindPodUpdated, pod))
	// The same state twice is the only thing the window may swallow.
	f.publish("user-1", events.NewPodEvent(events.KindPodUpdated, pod))

	assert.Len(t, f.frames(f.client), 2)
}

func TestBroadcaster_LockHolderChangeIsDelivered(t *testing.T) {
	f := newBroadcasterFixture()

	pod, err := entities.NewPod("flow-1", "ws-1", "user-1",
		valueobjects.NewTextContent("v1"), valueobjects.Position{})
	require.NoError(t, err)

	pod.Lock("session-a", time.Now().UTC())
	f.publish("user-1", events.NewPodEvent(events.KindPodLocked, pod))
	pod.Lock("session-b", time.Now().UTC())
	f.publish("user-1", events.NewPodEvent(events.KindPodLocked, pod))

	assert.Len(t, f.frames(f.client), 2)
}

func TestBroadcaster_EmptyMessageBypassesDedupe(t *testing.T) {
	f := newBroadcasterFixture()
	event := events.NewEvent("pod.updated", "", "", nil)

	f.publish("user-1", event)
	f.publish("user-1", event)

	assert.Len(t, f.frames(f.client), 2)
}

func TestBroadcaster_WireFormat(t *testing.T) {
	f := newBroadcasterFixture()

	f.publish("user-1", events.NewUnreadCountChanged(4))

	frames := f.frames(f.client)
	require.Len(t, frames, 1)

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
		Timestamp time.Time `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &decoded))
	assert.Equal(t, events.KindNotificationUnreadCount, decoded.Type)
	assert.Equal(t, 4, decoded.Data.Count)
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestBroadcaster_NoSessionsIsANoop(t *testing.T) {
	f := newBroadcasterFixture()

	// Publishing to a user with no sessions must not panic or block.
	f.publish("ghost", events.NewUnreadCountChanged(1))
	assert.Empty(t, f.frames(f.client))
}
