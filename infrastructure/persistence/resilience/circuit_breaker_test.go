package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	pkgerrors "flopods-backend/pkg/errors"
)

// flakyPods fails every Get with the configured error
type flakyPods struct {
	ports.PodRepository
	err   error
	calls int
}

func (f *flakyPods) Get(ctx context.Context, flowID, podID string) (*entities.Pod, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &entities.Pod{ID: podID, FlowID: flowID}, nil
}

func testConfig() BreakerConfig {
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 3
	cfg.FailureThreshold = 0.5
	return cfg
}

func TestBreakerOpensOnRepeatedStoreFailures(t *testing.T) {
	inner := &flakyPods{err: pkgerrors.NewDatabaseError("get pod", assert.AnError)}
	repo := NewPodRepository(inner, testConfig(), zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := repo.Get(ctx, "flow-1", "pod-1")
		require.Error(t, err)
	}

	// Breaker is open now; the inner store is no longer reached
	before := inner.calls
	_, err := repo.Get(ctx, "flow-1", "pod-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))
	assert.Equal(t, before, inner.calls)
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	inner := &flakyPods{err: pkgerrors.NewNotFoundError("pod")}
	repo := NewPodRepository(inner, testConfig(), zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := repo.Get(ctx, "flow-1", "pod-1")
		require.True(t, pkgerrors.IsNotFound(err))
	}
	assert.Equal(t, 10, inner.calls)
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond

	inner := &flakyPods{err: pkgerrors.NewDatabaseError("get pod", assert.AnError)}
	repo := NewPodRepository(inner, cfg, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = repo.Get(ctx, "flow-1", "pod-1")
	}

	inner.err = nil
	time.Sleep(20 * time.Millisecond)

	pod, err := repo.Get(ctx, "flow-1", "pod-1")
	require.NoError(t, err)
	assert.Equal(t, "pod-1", pod.ID)
}
