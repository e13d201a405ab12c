package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flopods-backend/domain/core/valueobjects"
	pkgerrors "flopods-backend/pkg/errors"
)

func TestNewPodStartsAtVersionOne(t *testing.T) {
	pod, err := NewPod("flow-1", "ws-1", "user-1",
		valueobjects.NewTextContent("hello"), valueobjects.Position{X: 1, Y: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, pod.ID)
	assert.Equal(t, 1, pod.Version)
	assert.Equal(t, valueobjects.PodKindText, pod.Type)
	assert.False(t, pod.Locked())
}

func TestNewPodRejectsInvalidContent(t *testing.T) {
	_, err := NewPod("flow-1", "ws-1", "user-1",
		valueobjects.PodContent{Kind: "mystery"}, valueobjects.Position{})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestUpdateContentRejectsKindChange(t *testing.T) {
	pod, err := NewPod("flow-1", "ws-1", "user-1",
		valueobjects.NewTextContent("hello"), valueobjects.Position{})
	require.NoError(t, err)

	err = pod.UpdateContent(valueobjects.NewWebpageContent("https://example.com"))
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, "hello", pod.Content.Text.Body)
}

func TestLockStaleRespectsTTL(t *testing.T) {
	pod, err := NewPod("flow-1", "ws-1", "user-1",
		valueobjects.NewTextContent("hello"), valueobjects.Position{})
	require.NoError(t, err)

	now := time.Now().UTC()
	pod.Lock("session-a", now.Add(-2*time.Minute))

	assert.True(t, pod.LockStale(time.Minute, now))
	assert.False(t, pod.LockStale(5*time.Minute, now))

	pod.Unlock()
	assert.False(t, pod.LockStale(time.Minute, now))
}

func TestCloneIsIndependent(t *testing.T) {
	pod, err := NewPod("flow-1", "ws-1", "user-1",
		valueobjects.NewTextContent("hello"), valueobjects.Position{})
	require.NoError(t, err)
	pod.SetContextPods([]string{"other"})
	pod.Lock("session-a", time.Now().UTC())

	clone := pod.Clone()
	clone.ContextPods[0] = "changed"
	clone.Unlock()

	assert.Equal(t, []string{"other"}, pod.ContextPods)
	assert.True(t, pod.Locked())
}

func TestNewEdgeRejectsSelfLoop(t *testing.T) {
	_, err := NewEdge("flow-1", "pod-1", "pod-1", "user-1")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNewEdgeRequiresBothEndpoints(t *testing.T) {
	_, err := NewEdge("flow-1", "pod-1", "", "user-1")
	assert.True(t, pkgerrors.IsValidation(err))

	edge, err := NewEdge("flow-1", "pod-1", "pod-2", "user-1")
	require.NoError(t, err)
	assert.True(t, edge.Touches("pod-1"))
	assert.True(t, edge.Touches("pod-2"))
	assert.False(t, edge.Touches("pod-3"))
}
