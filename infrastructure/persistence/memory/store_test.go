package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/core/valueobjects"
	pkgerrors "flopods-backend/pkg/errors"
)

func newTestPod(t *testing.T, flowID string) *entities.Pod {
	t.Helper()
	pod, err := entities.NewPod(flowID, "ws-1", "user-1",
		valueobjects.NewTextContent("hello"), valueobjects.Position{X: 1, Y: 2})
	require.NoError(t, err)
	return pod
}

func seedPod(t *testing.T, store *Store, flowID string) *entities.Pod {
	t.Helper()
	created, err := store.Pods().Put(context.Background(), newTestPod(t, flowID), 0)
	require.NoError(t, err)
	return created
}

func TestPodCreateStartsAtVersionOne(t *testing.T) {
	store := NewStore()

	created := seedPod(t, store, "flow-1")

	assert.Equal(t, 1, created.Version)

	got, err := store.Pods().Get(context.Background(), "flow-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestPodCreateRejectsDuplicateID(t *testing.T) {
	store := NewStore()

	created := seedPod(t, store, "flow-1")

	dup := newTestPod(t, "flow-1")
	dup.ID = created.ID
	_, err := store.Pods().Put(context.Background(), dup, 0)
	assert.True(t, pkgerrors.IsVersionConflict(err))
}

func TestPodPutIncrementsVersionAndRejectsStaleWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created := seedPod(t, store, "flow-1")

	updated, err := store.Pods().Put(ctx, created, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// The losing writer still holds version 1.
	_, err = store.Pods().Put(ctx, created, 1)
	assert.True(t, pkgerrors.IsVersionConflict(err))
}

func TestPodPutPreservesLockState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created := seedPod(t, store, "flow-1")
	now := time.Now().UTC()
	require.NoError(t, store.Locks().Acquire(ctx, created.ID, "session-a", now.Add(-time.Minute), now))

	updated, err := store.Pods().Put(ctx, created, 1)
	require.NoError(t, err)
	assert.Equal(t, "session-a", updated.LockedBy)
}

func TestMoveRelocatesAtomically(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created := seedPod(t, store, "flow-1")

	moved, err := store.Pods().Move(ctx, created, "flow-2", 1)
	require.NoError(t, err)
	assert.Equal(t, "flow-2", moved.FlowID)
	assert.Equal(t, 2, moved.Version)

	_, err = store.Pods().Get(ctx, "flow-1", created.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	found, err := store.Pods().FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "flow-2", found.FlowID)
}

func TestMoveRejectsStaleVersion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created := seedPod(t, store, "flow-1")
	_, err := store.Pods().Put(ctx, created, 1)
	require.NoError(t, err)

	_, err = store.Pods().Move(ctx, created, "flow-2", 1)
	assert.True(t, pkgerrors.IsVersionConflict(err))

	// A failed move leaves the pod where it was.
	got, err := store.Pods().FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "flow-1", got.FlowID)
}

func TestListByFlowPagesInIDOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedPod(t, store, "flow-1")
	}

	var seen []string
	page := ports.Page{Limit: 2}
	for {
		result, err := store.Pods().ListByFlow(ctx, "flow-1", page)
		require.NoError(t, err)
		for _, pod := range result.Pods {
			seen = append(seen, pod.ID)
		}
		if result.NextCursor == "" {
			break
		}
		page.Cursor = result.NextCursor
	}

	assert.Len(t, seen, 5)
	assert.IsIncreasing(t, seen)
}

func TestLockAcquireIsReentrantForHolder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created := seedPod(t, store, "flow-1")
	now := time.Now().UTC()
	stale := now.Add(-time.Minute)

	require.NoError(t, store.Locks().Acquire(ctx, created.ID, "session-a", stale, now))
	require.NoError(t, store.Locks().Acquire(ctx, created.ID, "session-a", stale, now))

	err := store.Locks().Acquire(ctx, created.ID, "session-b", stale, now)
	assert.True(t, pkgerrors.IsLockHeld(err))
}

func TestStaleLockCanBeTakenOver(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created := seedPod(t, store, "flow-1")
	lockedAt := time.Now().UTC().Add(-2 * time.Minute)
	require.NoError(t, store.Locks().Acquire(ctx, created.ID, "session-a", lockedAt.Add(-time.Minute), lockedAt))

	// session-a's lock predates the staleness cutoff, so session-b takes it.
	now := time.Now().UTC()
	require.NoError(t, store.Locks().Acquire(ctx, created.ID, "session-b", now.Add(-time.Minute), now))

	got, err := store.Pods().FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "session-b", got.LockedBy)
}

func TestReleaseByNonHolderFails(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created := seedPod(t, store, "flow-1")
	now := time.Now().UTC()
	require.NoError(t, store.Locks().Acquire(ctx, created.ID, "session-a", now.Add(-time.Minute), now))

	err := store.Locks().Release(ctx, created.ID, "session-b")
	assert.True(t, pkgerrors.IsNotLockHolder(err))

	require.NoError(t, store.Locks().Release(ctx, created.ID, "session-a"))
	// Releasing an unlocked pod is a no-op.
	require.NoError(t, store.Locks().Release(ctx, created.ID, "session-a"))
}

func TestDeleteByPodReturnsRemovedEdges(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	a := seedPod(t, store, "flow-1")
	b := seedPod(t, store, "flow-1")
	c := seedPod(t, store, "flow-1")

	mustEdge := func(source, target string) *entities.Edge {
		edge, err := entities.NewEdge("flow-1", source, target, "user-1")
		require.NoError(t, err)
		stored, err := store.Edges().Put(ctx, edge, 0)
		require.NoError(t, err)
		return stored
	}
	mustEdge(a.ID, b.ID)
	mustEdge(b.ID, c.ID)
	survivor := mustEdge(a.ID, c.ID)

	removed, err := store.Edges().DeleteByPod(ctx, "flow-1", b.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	page, err := store.Edges().ListByFlow(ctx, "flow-1", ports.Page{})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	assert.Equal(t, survivor.ID, page.Edges[0].ID)
}

func TestFlowDeleteCascades(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	flow, err := entities.NewFlow("ws-1", "doomed", "user-1")
	require.NoError(t, err)
	require.NoError(t, store.Flows().Create(ctx, flow))

	pod := seedPod(t, store, flow.ID)

	require.NoError(t, store.Flows().Delete(ctx, flow.ID))

	_, err = store.Flows().Get(ctx, flow.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = store.Pods().FindByID(ctx, pod.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestListByWorkspaceFiltersAndSorts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		flow, err := entities.NewFlow("ws-1", name, "user-1")
		require.NoError(t, err)
		require.NoError(t, store.Flows().Create(ctx, flow))
	}
	other, err := entities.NewFlow("ws-2", "elsewhere", "user-1")
	require.NoError(t, err)
	require.NoError(t, store.Flows().Create(ctx, other))

	flows, err := store.Flows().ListByWorkspace(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "alpha", flows[0].Name)
	assert.Equal(t, "zeta", flows[1].Name)
}
