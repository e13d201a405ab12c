package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flopods-backend/application/locking"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/core/valueobjects"
	"flopods-backend/infrastructure/persistence/memory"
	"flopods-backend/pkg/observability"
)

func newTestHub() *Hub {
	return NewHub(observability.NewCollector("test"), zap.NewNop())
}

// newTestClient builds a session without a network connection. Frames land
// in its send channel.
func newTestClient(userID string, hub *Hub) *Client {
	return NewClient(userID, hub, nil, zap.NewNop())
}

func TestHub_RegisterTracksSessionsPerUser(t *testing.T) {
	h := newTestHub()

	a1 := newTestClient("user-a", h)
	a2 := newTestClient("user-a", h)
	b1 := newTestClient("user-b", h)

	h.registerClient(a1)
	h.registerClient(a2)
	h.registerClient(b1)

	assert.Equal(t, 2, h.SessionCount("user-a"))
	assert.Equal(t, 1, h.SessionCount("user-b"))

	h.unregisterClient(a1)
	assert.Equal(t, 1, h.SessionCount("user-a"))

	h.unregisterClient(a2)
	assert.Equal(t, 0, h.SessionCount("user-a"))
}

func TestHub_BroadcastReachesEverySessionOfUser(t *testing.T) {
	h := newTestHub()

	a1 := newTestClient("user-a", h)
	a2 := newTestClient("user-a", h)
	b1 := newTestClient("user-b", h)
	h.registerClient(a1)
	h.registerClient(a2)
	h.registerClient(b1)

	h.broadcastToUser(&outbound{userID: "user-a", data: []byte(`{"type":"x"}`)})

	for _, c := range []*Client{a1, a2} {
		select {
		case frame := <-c.send:
			assert.JSONEq(t, `{"type":"x"}`, string(frame))
		default:
			t.Fatalf("session %s received no frame", c.id)
		}
	}

	// The other user's session stays silent.
	select {
	case <-b1.send:
		t.Fatal("user-b received a frame addressed to user-a")
	default:
	}
}

func TestHub_OrderIsPreservedPerSession(t *testing.T) {
	h := newTestHub()
	c := newTestClient("user-a", h)
	h.registerClient(c)

	frames := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	for _, f := range frames {
		h.broadcastToUser(&outbound{userID: "user-a", data: []byte(f)})
	}

	for _, want := range frames {
		select {
		case got := <-c.send:
			assert.JSONEq(t, want, string(got))
		default:
			t.Fatal("missing frame")
		}
	}
}

func TestHub_RunRegisterAndStop(t *testing.T) {
	h := newTestHub()
	go h.Run()
	defer h.Stop()

	c := newTestClient("user-a", h)
	h.register <- c

	require.Eventually(t, func() bool {
		return h.SessionCount("user-a") == 1
	}, time.Second, 5*time.Millisecond)

	ok := h.Send("user-a", []byte(`{"type":"y"}`))
	assert.True(t, ok)

	select {
	case frame := <-c.send:
		assert.JSONEq(t, `{"type":"y"}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("frame never delivered")
	}
}

func TestHub_DisconnectReleasesHeldLocks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := locking.NewCoordinator(store.Locks(), time.Minute, zap.NewNop())

	flow, err := entities.NewFlow("ws-1", "main", "user-1")
	require.NoError(t, err)
	require.NoError(t, store.Flows().Create(ctx, flow))
	pod, err := entities.NewPod(flow.ID, "ws-1", "user-1",
		valueobjects.NewTextContent("x"), valueobjects.NewPosition(0, 0))
	require.NoError(t, err)
	created, err := store.Pods().Put(ctx, pod, 0)
	require.NoError(t, err)

	h := newTestHub()
	h.SetDisconnectHandler(func(sessionID, userID string) {
		coord.ReleaseAll(context.Background(), sessionID)
	})

	c := newTestClient("user-1", h)
	h.registerClient(c)
	require.NoError(t, coord.Acquire(ctx, created.ID, c.ID()))

	h.unregisterClient(c)

	require.Eventually(t, func() bool {
		got, err := store.Pods().Get(ctx, flow.ID, created.ID)
		return err == nil && !got.Locked()
	}, time.Second, 5*time.Millisecond)
}
