package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flopods-backend/application/locking"
	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/core/valueobjects"
	"flopods-backend/domain/events"
	"flopods-backend/infrastructure/persistence/memory"
	pkgerrors "flopods-backend/pkg/errors"
)

type canvasFixture struct {
	store     *memory.Store
	coord     *locking.Coordinator
	publisher *capturePublisher
	svc       *CanvasService
	flow      *entities.Flow
}

func newCanvasFixture(t *testing.T) *canvasFixture {
	t.Helper()
	store := memory.NewStore()
	coord := locking.NewCoordinator(store.Locks(), time.Minute, zap.NewNop())
	publisher := &capturePublisher{}
	svc := NewCanvasService(store.Pods(), store.Edges(), store.Flows(), coord, publisher, zap.NewNop())

	flow, err := entities.NewFlow("ws-1", "main", "user-1")
	require.NoError(t, err)
	require.NoError(t, store.Flows().Create(context.Background(), flow))

	return &canvasFixture{store: store, coord: coord, publisher: publisher, svc: svc, flow: flow}
}

func (f *canvasFixture) createPod(t *testing.T) *entities.Pod {
	t.Helper()
	pod, err := f.svc.CreatePod(context.Background(), CreatePodInput{
		FlowID:      f.flow.ID,
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Content:     valueobjects.NewTextContent("hello"),
		Position:    valueobjects.NewPosition(1, 2),
	})
	require.NoError(t, err)
	return pod
}

func TestCanvas_CreatePod(t *testing.T) {
	f := newCanvasFixture(t)

	pod := f.createPod(t)
	assert.Equal(t, 1, pod.Version)
	assert.Equal(t, valueobjects.PodKindText, pod.Type)
	assert.Contains(t, f.publisher.kinds(), events.KindPodCreated)
}

func TestCanvas_CreatePodRequiresExistingFlow(t *testing.T) {
	f := newCanvasFixture(t)

	_, err := f.svc.CreatePod(context.Background(), CreatePodInput{
		FlowID:      "missing",
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Content:     valueobjects.NewTextContent("hello"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvas_UpdatePodIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	f := newCanvasFixture(t)
	pod := f.createPod(t)

	content := valueobjects.NewTextContent("edited")
	updated, err := f.svc.UpdatePod(ctx, UpdatePodInput{
		FlowID:          f.flow.ID,
		PodID:           pod.ID,
		UserID:          "user-1",
		ExpectedVersion: pod.Version,
		Content:         &content,
	})
	require.NoError(t, err)
	assert.Equal(t, pod.Version+1, updated.Version)
	assert.Equal(t, "edited", updated.Content.Text.Body)
}

func TestCanvas_StaleUpdateIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newCanvasFixture(t)
	pod := f.createPod(t)

	// First writer wins.
	pos := valueobjects.NewPosition(5, 5)
	_, err := f.svc.UpdatePod(ctx, UpdatePodInput{
		FlowID:          f.flow.ID,
		PodID:           pod.ID,
		UserID:          "user-1",
		ExpectedVersion: pod.Version,
		Position:        &pos,
	})
	require.NoError(t, err)

	// Second writer still holds the old version and must fail.
	stale := valueobjects.NewPosition(9, 9)
	_, err = f.svc.UpdatePod(ctx, UpdatePodInput{
		FlowID:          f.flow.ID,
		PodID:           pod.ID,
		UserID:          "user-2",
		ExpectedVersion: pod.Version,
		Position:        &stale,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsVersionConflict(err))

	// The losing write left no trace.
	current, err := f.svc.GetPod(ctx, f.flow.ID, pod.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.NewPosition(5, 5), current.Position)
}

func TestCanvas_PodKindCannotChange(t *testing.T) {
	ctx := context.Background()
	f := newCanvasFixture(t)
	pod := f.createPod(t)

	content := valueobjects.NewLLMContent("gpt-4o", "prompt")
	_, err := f.svc.UpdatePod(ctx, UpdatePodInput{
		FlowID:          f.flow.ID,
		PodID:           pod.ID,
		UserID:          "user-1",
		ExpectedVersion: pod.Version,
		Content:         &content,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCanvas_DeletePodCascadesEdges(t *testing.T) {
	ctx := context.Background()
	f := newCanvasFixture(t)
	a := f.createPod(t)
	b := f.createPod(t)
	c := f.createPod(t)

	_, err := f.svc.CreateEdge(ctx, f.flow.ID, a.ID, b.ID, "user-1")
	require.NoError(t, err)
	keep, err := f.svc.CreateEdge(ctx, f.flow.ID, b.ID, c.ID, "user-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePod(ctx, f.flow.ID, a.ID, "user-1"))

	_, err = f.svc.GetPod(ctx, f.flow.ID, a.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	// Only the edge touching the deleted pod is gone.
	edges, err := f.store.Edges().ListByFlow(ctx, f.flow.ID, ports.Page{})
	require.NoError(t, err)
	require.Len(t, edges.Edges, 1)
	assert.Equal(t, keep.ID, edges.Edges[0].ID)

	assert.Contains(t, f.publisher.kinds(), events.KindPodDeleted)
	assert.Contains(t, f.publisher.kinds(), events.KindEdgeDeleted)
}

func TestCanvas_CreateEdgeRequiresBothEndpointsInFlow(t *testing.T) {
	ctx := context.Background()
	f := newCanvasFixture(t)
	a := f.createPod(t)

	_, err := f.svc.CreateEdge(ctx, f.flow.ID, a.ID, "missing", "user-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCanvas_CreateEdgeRejectsSelfLoop(t *testing.T) {
	ctx := context.Background()
	f := newCanvasFixture(t)
	a := f.createPod(t)

	_, err := f.svc.CreateEdge(ctx, f.flow.ID, a.ID, a.ID, "user-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCanvas_LockAndUnlockPod(t *testing.T) {
	ctx := context.Background()
	f := newCanvasFixture(t)
	pod := f.createPod(t)

	locked, err := f.svc.LockPod(ctx, pod.ID, "session-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", locked.LockedBy)
	assert.Contains(t, f.publisher.kinds(), events.KindPodLocked)

	require.NoError(t, f.svc.UnlockPod(ctx, pod.ID, "session-1", "user-1"))
	current, err := f.svc.GetPod(ctx, f.flow.ID, pod.ID)
	require.NoError(t, err)
	assert.False(t, current.Locked())
	assert.Contains(t, f.publisher.kinds(), events.KindPodUnlocked)
}

func TestCanvas_WriteSucceedsWithoutAdvisoryLock(t *testing.T) {
	// The advisory lock is a UX claim, not a write gate. A stale version is
	// the only thing that blocks a write.
	ctx := context.Background()
	f := newCanvasFixture(t)
	pod := f.createPod(t)

	_, err := f.svc.LockPod(ctx, pod.ID, "session-other", "user-2")
	require.NoError(t, err)

	pos := valueobjects.NewPosition(7, 7)
	updated, err := f.svc.UpdatePod(ctx, UpdatePodInput{
		FlowID:          f.flow.ID,
		PodID:           pod.ID,
		UserID:          "user-1",
		ExpectedVersion: pod.Version,
		Position:        &pos,
	})
	require.NoError(t, err)
	assert.Equal(t, pod.Version+1, updated.Version)

	// The lock annotation survives the content write.
	assert.Equal(t, "session-other", updated.LockedBy)
}

func TestCanvas_ListCanvasPagination(t *testing.T) {
	ctx := context.Background()
	f := newCanvasFixture(t)
	for i := 0; i < 5; i++ {
		f.createPod(t)
	}

	first, err := f.svc.ListCanvas(ctx, f.flow.ID, ports.Page{Limit: 3}, ports.Page{})
	require.NoError(t, err)
	assert.Len(t, first.Pods, 3)
	require.NotEmpty(t, first.PodsNextCursor)

	second, err := f.svc.ListCanvas(ctx, f.flow.ID, ports.Page{Limit: 3, Cursor: first.PodsNextCursor}, ports.Page{})
	require.NoError(t, err)
	assert.Len(t, second.Pods, 2)
	assert.Empty(t, second.PodsNextCursor)

	seen := map[string]bool{}
	for _, p := range append(first.Pods, second.Pods...) {
		assert.False(t, seen[p.ID])
		seen[p.ID] = true
	}
}
