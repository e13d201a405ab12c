// Package resilience decorates repositories with circuit breaker
// protection so a struggling table fails fast instead of piling on.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	pkgerrors "flopods-backend/pkg/errors"
)

// BreakerConfig tunes the circuit breaker wrapped around a repository
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the settings used in production
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

func newBreaker(config BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Expected outcomes of a healthy store must not trip the breaker
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return pkgerrors.IsNotFound(err) ||
				pkgerrors.IsVersionConflict(err) ||
				pkgerrors.IsValidation(err) ||
				pkgerrors.IsLockHeld(err) ||
				pkgerrors.IsNotLockHolder(err)
		},
	})
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.NewUnavailableError("pod store")
	}
	return err
}

// PodRepository wraps a ports.PodRepository with a shared circuit breaker
type PodRepository struct {
	inner   ports.PodRepository
	breaker *gobreaker.CircuitBreaker
}

// NewPodRepository decorates inner with circuit breaker protection
func NewPodRepository(inner ports.PodRepository, config BreakerConfig, logger *zap.Logger) *PodRepository {
	return &PodRepository{
		inner:   inner,
		breaker: newBreaker(config, logger.Named("breaker")),
	}
}

func (r *PodRepository) execute(fn func() error) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return mapBreakerErr(err)
}

func (r *PodRepository) Get(ctx context.Context, flowID, podID string) (*entities.Pod, error) {
	var result *entities.Pod
	err := r.execute(func() error {
		var err error
		result, err = r.inner.Get(ctx, flowID, podID)
		return err
	})
	return result, err
}

func (r *PodRepository) FindByID(ctx context.Context, podID string) (*entities.Pod, error) {
	var result *entities.Pod
	err := r.execute(func() error {
		var err error
		result, err = r.inner.FindByID(ctx, podID)
		return err
	})
	return result, err
}

func (r *PodRepository) Put(ctx context.Context, pod *entities.Pod, expectedVersion int) (*entities.Pod, error) {
	var result *entities.Pod
	err := r.execute(func() error {
		var err error
		result, err = r.inner.Put(ctx, pod, expectedVersion)
		return err
	})
	return result, err
}

func (r *PodRepository) Move(ctx context.Context, pod *entities.Pod, targetFlowID string, expectedVersion int) (*entities.Pod, error) {
	var result *entities.Pod
	err := r.execute(func() error {
		var err error
		result, err = r.inner.Move(ctx, pod, targetFlowID, expectedVersion)
		return err
	})
	return result, err
}

func (r *PodRepository) Delete(ctx context.Context, flowID, podID string) error {
	return r.execute(func() error {
		return r.inner.Delete(ctx, flowID, podID)
	})
}

func (r *PodRepository) ListByFlow(ctx context.Context, flowID string, page ports.Page) (*ports.PodPage, error) {
	var result *ports.PodPage
	err := r.execute(func() error {
		var err error
		result, err = r.inner.ListByFlow(ctx, flowID, page)
		return err
	})
	return result, err
}

func (r *PodRepository) CountByFlow(ctx context.Context, flowID string) (int, error) {
	var result int
	err := r.execute(func() error {
		var err error
		result, err = r.inner.CountByFlow(ctx, flowID)
		return err
	})
	return result, err
}

// EdgeRepository wraps a ports.EdgeRepository with a circuit breaker
type EdgeRepository struct {
	inner   ports.EdgeRepository
	breaker *gobreaker.CircuitBreaker
}

// NewEdgeRepository decorates inner with circuit breaker protection
func NewEdgeRepository(inner ports.EdgeRepository, config BreakerConfig, logger *zap.Logger) *EdgeRepository {
	return &EdgeRepository{
		inner:   inner,
		breaker: newBreaker(config, logger.Named("breaker")),
	}
}

func (r *EdgeRepository) execute(fn func() error) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return mapBreakerErr(err)
}

func (r *EdgeRepository) Get(ctx context.Context, flowID, edgeID string) (*entities.Edge, error) {
	var result *entities.Edge
	err := r.execute(func() error {
		var err error
		result, err = r.inner.Get(ctx, flowID, edgeID)
		return err
	})
	return result, err
}

func (r *EdgeRepository) Put(ctx context.Context, edge *entities.Edge, expectedVersion int) (*entities.Edge, error) {
	var result *entities.Edge
	err := r.execute(func() error {
		var err error
		result, err = r.inner.Put(ctx, edge, expectedVersion)
		return err
	})
	return result, err
}

func (r *EdgeRepository) Delete(ctx context.Context, flowID, edgeID string) error {
	return r.execute(func() error {
		return r.inner.Delete(ctx, flowID, edgeID)
	})
}

func (r *EdgeRepository) ListByFlow(ctx context.Context, flowID string, page ports.Page) (*ports.EdgePage, error) {
	var result *ports.EdgePage
	err := r.execute(func() error {
		var err error
		result, err = r.inner.ListByFlow(ctx, flowID, page)
		return err
	})
	return result, err
}

func (r *EdgeRepository) DeleteByPod(ctx context.Context, flowID, podID string) ([]*entities.Edge, error) {
	var result []*entities.Edge
	err := r.execute(func() error {
		var err error
		result, err = r.inner.DeleteByPod(ctx, flowID, podID)
		return err
	})
	return result, err
}
