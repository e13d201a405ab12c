// Package services holds the application services that implement the
// collaborative canvas operations on top of the repository ports.
package services

import (
	"context"

	"go.uber.org/zap"

	"flopods-backend/application/locking"
	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/core/valueobjects"
	"flopods-backend/domain/events"
	pkgerrors "flopods-backend/pkg/errors"
)

// CanvasService implements pod and edge editing on a flow canvas. Every
// mutation is an optimistic conditional write against the version the
// client last observed, and every successful mutation is pushed to the
// actor's live sessions.
type CanvasService struct {
	pods      ports.PodRepository
	edges     ports.EdgeRepository
	flows     ports.FlowRepository
	locks     *locking.Coordinator
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewCanvasService wires a canvas service
func NewCanvasService(
	pods ports.PodRepository,
	edges ports.EdgeRepository,
	flows ports.FlowRepository,
	locks *locking.Coordinator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *CanvasService {
	return &CanvasService{
		pods:      pods,
		edges:     edges,
		flows:     flows,
		locks:     locks,
		publisher: publisher,
		logger:    logger,
	}
}

// CreatePodInput carries everything needed to place a new pod on a canvas
type CreatePodInput struct {
	FlowID      string
	WorkspaceID string
	UserID      string
	Content     valueobjects.PodContent
	Position    valueobjects.Position
	ContextPods []string
}

// CreatePod places a new pod on the flow's canvas
func (s *CanvasService) CreatePod(ctx context.Context, in CreatePodInput) (*entities.Pod, error) {
	if _, err := s.flows.Get(ctx, in.FlowID); err != nil {
		return nil, err
	}

	pod, err := entities.NewPod(in.FlowID, in.WorkspaceID, in.UserID, in.Content, in.Position)
	if err != nil {
		return nil, err
	}
	if len(in.ContextPods) > 0 {
		pod.SetContextPods(in.ContextPods)
	}

	created, err := s.pods.Put(ctx, pod, 0)
	if err != nil {
		return nil, err
	}

	s.logger.Info("pod created",
		zap.String("pod_id", created.ID),
		zap.String("flow_id", created.FlowID),
		zap.String("type", string(created.Type)))
	s.publisher.Publish(in.UserID, events.NewPodEvent(events.KindPodCreated, created))
	return created, nil
}

// UpdatePodInput carries a partial pod update. Nil fields are left alone.
// ExpectedVersion is the version the client last observed.
type UpdatePodInput struct {
	FlowID          string
	PodID           string
	UserID          string
	ExpectedVersion int
	Content         *valueobjects.PodContent
	Position        *valueobjects.Position
	ContextPods     []string
}

// UpdatePod applies a partial update conditioned on the observed version
func (s *CanvasService) UpdatePod(ctx context.Context, in UpdatePodInput) (*entities.Pod, error) {
	pod, err := s.pods.Get(ctx, in.FlowID, in.PodID)
	if err != nil {
		return nil, err
	}

	if in.Content != nil {
		if err := pod.UpdateContent(*in.Content); err != nil {
			return nil, err
		}
	}
	if in.Position != nil {
		pod.MoveTo(*in.Position)
	}
	if in.ContextPods != nil {
		pod.SetContextPods(in.ContextPods)
	}

	updated, err := s.pods.Put(ctx, pod, in.ExpectedVersion)
	if err != nil {
		if pkgerrors.IsVersionConflict(err) {
			s.logger.Debug("stale pod write rejected",
				zap.String("pod_id", in.PodID),
				zap.Int("expected_version", in.ExpectedVersion))
		}
		return nil, err
	}

	s.publisher.Publish(in.UserID, events.NewPodEvent(events.KindPodUpdated, updated))
	return updated, nil
}

// DeletePod removes a pod and every edge attached to it. Edges go first so
// the canvas never shows an edge with a missing endpoint.
func (s *CanvasService) DeletePod(ctx context.Context, flowID, podID, userID string) error {
	pod, err := s.pods.Get(ctx, flowID, podID)
	if err != nil {
		return err
	}

	removed, err := s.edges.DeleteByPod(ctx, flowID, podID)
	if err != nil {
		return err
	}
	if err := s.pods.Delete(ctx, flowID, podID); err != nil {
		return err
	}

	s.logger.Info("pod deleted",
		zap.String("pod_id", podID),
		zap.String("flow_id", flowID),
		zap.Int("edges_removed", len(removed)))

	for _, edge := range removed {
		s.publisher.Publish(userID, events.NewEdgeEvent(events.KindEdgeDeleted, edge))
	}
	s.publisher.Publish(userID, events.NewPodEvent(events.KindPodDeleted, pod))
	return nil
}

// CreateEdge connects two pods of the same flow
func (s *CanvasService) CreateEdge(ctx context.Context, flowID, sourceID, targetID, userID string) (*entities.Edge, error) {
	if _, err := s.pods.Get(ctx, flowID, sourceID); err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewValidationError("edge source pod does not exist in this flow")
		}
		return nil, err
	}
	if _, err := s.pods.Get(ctx, flowID, targetID); err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewValidationError("edge target pod does not exist in this flow")
		}
		return nil, err
	}

	edge, err := entities.NewEdge(flowID, sourceID, targetID, userID)
	if err != nil {
		return nil, err
	}

	created, err := s.edges.Put(ctx, edge, 0)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(userID, events.NewEdgeEvent(events.KindEdgeCreated, created))
	return created, nil
}

// DeleteEdge removes an edge
func (s *CanvasService) DeleteEdge(ctx context.Context, flowID, edgeID, userID string) error {
	edge, err := s.edges.Get(ctx, flowID, edgeID)
	if err != nil {
		return err
	}
	if err := s.edges.Delete(ctx, flowID, edgeID); err != nil {
		return err
	}

	s.publisher.Publish(userID, events.NewEdgeEvent(events.KindEdgeDeleted, edge))
	return nil
}

// LockPod takes the advisory editing lock on a pod for the caller's session
func (s *CanvasService) LockPod(ctx context.Context, podID, holder, userID string) (*entities.Pod, error) {
	if err := s.locks.Acquire(ctx, podID, holder); err != nil {
		return nil, err
	}

	pod, err := s.pods.FindByID(ctx, podID)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(userID, events.NewPodEvent(events.KindPodLocked, pod))
	return pod, nil
}

// UnlockPod drops the advisory editing lock
func (s *CanvasService) UnlockPod(ctx context.Context, podID, holder, userID string) error {
	if err := s.locks.Release(ctx, podID, holder); err != nil {
		return err
	}

	pod, err := s.pods.FindByID(ctx, podID)
	if err != nil {
		return err
	}

	s.publisher.Publish(userID, events.NewPodEvent(events.KindPodUnlocked, pod))
	return nil
}

// Canvas is one page of a flow's pods and edges
type Canvas struct {
	Pods           []*entities.Pod
	Edges          []*entities.Edge
	PodsNextCursor string
	EdgeNextCursor string
}

// ListCanvas returns one page of the flow's pods and edges
func (s *CanvasService) ListCanvas(ctx context.Context, flowID string, podPage, edgePage ports.Page) (*Canvas, error) {
	if _, err := s.flows.Get(ctx, flowID); err != nil {
		return nil, err
	}

	pods, err := s.pods.ListByFlow(ctx, flowID, podPage)
	if err != nil {
		return nil, err
	}
	edges, err := s.edges.ListByFlow(ctx, flowID, edgePage)
	if err != nil {
		return nil, err
	}

	return &Canvas{
		Pods:           pods.Pods,
		Edges:          edges.Edges,
		PodsNextCursor: pods.NextCursor,
		EdgeNextCursor: edges.NextCursor,
	}, nil
}

// GetPod fetches one pod
func (s *CanvasService) GetPod(ctx context.Context, flowID, podID string) (*entities.Pod, error) {
	return s.pods.Get(ctx, flowID, podID)
}
