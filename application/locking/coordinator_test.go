package locking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/core/valueobjects"
	"flopods-backend/infrastructure/persistence/memory"
	pkgerrors "flopods-backend/pkg/errors"
)

func seedPod(t *testing.T, store *memory.Store) *entities.Pod {
	t.Helper()
	pod, err := entities.NewPod("flow-1", "ws-1", "user-1",
		valueobjects.NewTextContent("hello"), valueobjects.NewPosition(10, 20))
	require.NoError(t, err)
	created, err := store.Pods().Put(context.Background(), pod, 0)
	require.NoError(t, err)
	return created
}

func newTestCoordinator(store *memory.Store, ttl time.Duration) *Coordinator {
	return NewCoordinator(store.Locks(), ttl, zap.NewNop())
}

func TestCoordinator_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pod := seedPod(t, store)
	c := newTestCoordinator(store, time.Minute)

	require.NoError(t, c.Acquire(ctx, pod.ID, "session-a"))
	assert.Equal(t, 1, c.Held("session-a"))

	locked, err := store.Pods().Get(ctx, pod.FlowID, pod.ID)
	require.NoError(t, err)
	assert.Equal(t, "session-a", locked.LockedBy)
	require.NotNil(t, locked.LockedAt)

	require.NoError(t, c.Release(ctx, pod.ID, "session-a"))
	assert.Equal(t, 0, c.Held("session-a"))

	unlocked, err := store.Pods().Get(ctx, pod.FlowID, pod.ID)
	require.NoError(t, err)
	assert.False(t, unlocked.Locked())
}

func TestCoordinator_AcquireIsReentrantForHolder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pod := seedPod(t, store)
	c := newTestCoordinator(store, time.Minute)

	require.NoError(t, c.Acquire(ctx, pod.ID, "session-a"))
	require.NoError(t, c.Acquire(ctx, pod.ID, "session-a"))
	assert.Equal(t, 1, c.Held("session-a"))
}

func TestCoordinator_AcquireRejectsWhenHeldByOther(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pod := seedPod(t, store)
	c := newTestCoordinator(store, time.Minute)

	require.NoError(t, c.Acquire(ctx, pod.ID, "session-a"))

	err := c.Acquire(ctx, pod.ID, "session-b")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsLockHeld(err))
	assert.Equal(t, 0, c.Held("session-b"))
}

func TestCoordinator_StaleLockIsReclaimed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pod := seedPod(t, store)
	c := newTestCoordinator(store, time.Minute)

	base := time.Now().UTC()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Acquire(ctx, pod.ID, "session-a"))

	// Within TTL the lock still sticks.
	c.now = func() time.Time { return base.Add(30 * time.Second) }
	err := c.Acquire(ctx, pod.ID, "session-b")
	assert.True(t, pkgerrors.IsLockHeld(err))

	// Past TTL another session may take it over.
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	require.NoError(t, c.Acquire(ctx, pod.ID, "session-b"))

	locked, err := store.Pods().Get(ctx, pod.FlowID, pod.ID)
	require.NoError(t, err)
	assert.Equal(t, "session-b", locked.LockedBy)
}

func TestCoordinator_ReleaseUnlockedIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pod := seedPod(t, store)
	c := newTestCoordinator(store, time.Minute)

	assert.NoError(t, c.Release(ctx, pod.ID, "session-a"))
}

func TestCoordinator_ReleaseByNonHolderFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pod := seedPod(t, store)
	c := newTestCoordinator(store, time.Minute)

	require.NoError(t, c.Acquire(ctx, pod.ID, "session-a"))

	err := c.Release(ctx, pod.ID, "session-b")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotLockHolder(err))

	still, err := store.Pods().Get(ctx, pod.FlowID, pod.ID)
	require.NoError(t, err)
	assert.Equal(t, "session-a", still.LockedBy)
}

func TestCoordinator_ReleaseAllOnDisconnect(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := newTestCoordinator(store, time.Minute)

	var pods []*entities.Pod
	for i := 0; i < 3; i++ {
		pods = append(pods, seedPod(t, store))
	}
	for _, pod := range pods {
		require.NoError(t, c.Acquire(ctx, pod.ID, "session-a"))
	}
	other := seedPod(t, store)
	require.NoError(t, c.Acquire(ctx, other.ID, "session-b"))

	c.ReleaseAll(ctx, "session-a")

	assert.Equal(t, 0, c.Held("session-a"))
	for _, pod := range pods {
		got, err := store.Pods().Get(ctx, pod.FlowID, pod.ID)
		require.NoError(t, err)
		assert.False(t, got.Locked())
	}

	// Other sessions keep their locks.
	kept, err := store.Pods().Get(ctx, other.FlowID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "session-b", kept.LockedBy)
}

func TestCoordinator_AcquireMissingPod(t *testing.T) {
	store := memory.NewStore()
	c := newTestCoordinator(store, time.Minute)

	err := c.Acquire(context.Background(), "nope", "session-a")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}
