package services

import (
	"context"

	"go.uber.org/zap"

	"flopods-backend/application/locking"
	"flopods-backend/application/ports"
	"flopods-backend/application/sagas"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/events"
	pkgerrors "flopods-backend/pkg/errors"
)

// MoveService relocates a pod from one flow to another as a saga: each
// completed step registers a compensation that runs, in reverse order, if a
// later step fails. The pod relocation itself is a single atomic repository
// write, so the caller never observes the pod in two flows.
type MoveService struct {
	pods      ports.PodRepository
	edges     ports.EdgeRepository
	flows     ports.FlowRepository
	locks     *locking.Coordinator
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewMoveService wires a move service
func NewMoveService(
	pods ports.PodRepository,
	edges ports.EdgeRepository,
	flows ports.FlowRepository,
	locks *locking.Coordinator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *MoveService {
	return &MoveService{
		pods:      pods,
		edges:     edges,
		flows:     flows,
		locks:     locks,
		publisher: publisher,
		logger:    logger,
	}
}

// MoveInput describes one pod relocation
type MoveInput struct {
	PodID           string
	TargetFlowID    string
	ExpectedVersion int
	// Holder is the session taking the advisory lock for the duration of
	// the move.
	Holder string
	UserID string
	// LinkToPodID, when set, creates an edge from the moved pod to this pod
	// in the target flow after the move.
	LinkToPodID string
	// DeleteSourceIfEmpty deletes the source flow when the move leaves it
	// with no pods.
	DeleteSourceIfEmpty bool
}

// MoveResult reports what a completed move did
type MoveResult struct {
	PodID             string `json:"podId"`
	SourceFlowID      string `json:"sourceFlowId"`
	TargetFlowID      string `json:"targetFlowId"`
	Version           int    `json:"version"`
	CreatedEdgeID     string `json:"createdEdgeId,omitempty"`
	SourceFlowDeleted bool   `json:"sourceFlowDeleted"`
}

// Move relocates a pod into the target flow. On any failure after the lock
// is taken, completed steps are compensated in reverse order; the lock is
// released on every exit path.
func (s *MoveService) Move(ctx context.Context, in MoveInput) (*MoveResult, error) {
	pod, err := s.pods.FindByID(ctx, in.PodID)
	if err != nil {
		return nil, err
	}
	sourceFlowID := pod.FlowID

	if _, err := s.flows.Get(ctx, in.TargetFlowID); err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewNotFoundError("target flow")
		}
		return nil, err
	}
	if in.TargetFlowID == sourceFlowID {
		return nil, pkgerrors.NewValidationError("pod is already in the target flow")
	}

	if err := s.locks.Acquire(ctx, in.PodID, in.Holder); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.locks.Release(ctx, in.PodID, in.Holder); err != nil {
			s.logger.Warn("failed to release move lock",
				zap.String("pod_id", in.PodID),
				zap.Error(err))
		}
	}()

	saga := sagas.New("pod-move", s.logger)

	// Edges in the source flow referencing the pod lose an endpoint, so
	// they go first. Restoring them is the compensation if the relocation
	// itself fails.
	removedEdges, err := s.edges.DeleteByPod(ctx, sourceFlowID, in.PodID)
	if err != nil {
		return nil, err
	}
	saga.Completed("detach-edges", func(ctx context.Context) error {
		for _, edge := range removedEdges {
			if _, err := s.edges.Put(ctx, edge, 0); err != nil {
				return err
			}
		}
		return nil
	})

	moved, err := s.pods.Move(ctx, pod, in.TargetFlowID, in.ExpectedVersion)
	if err != nil {
		saga.Rollback(ctx)
		return nil, err
	}
	saga.Completed("relocate-pod", func(ctx context.Context) error {
		_, err := s.pods.Move(ctx, moved, sourceFlowID, moved.Version)
		return err
	})

	result := &MoveResult{
		PodID:        moved.ID,
		SourceFlowID: sourceFlowID,
		TargetFlowID: in.TargetFlowID,
		Version:      moved.Version,
	}

	if in.LinkToPodID != "" {
		edge, err := s.autoLink(ctx, moved, in.LinkToPodID, in.UserID)
		if err != nil {
			saga.Rollback(ctx)
			return nil, err
		}
		result.CreatedEdgeID = edge.ID
		s.publisher.Publish(in.UserID, events.NewEdgeEvent(events.KindEdgeCreated, edge))
	}

	if in.DeleteSourceIfEmpty {
		deleted, err := s.deleteSourceIfEmpty(ctx, sourceFlowID)
		if err != nil {
			// The move itself stands; only the cleanup is reported.
			return result, err
		}
		result.SourceFlowDeleted = deleted
		if deleted {
			s.publisher.Publish(in.UserID, events.NewFlowDeleted(sourceFlowID))
		}
	}

	s.logger.Info("pod moved",
		zap.String("pod_id", moved.ID),
		zap.String("source_flow_id", sourceFlowID),
		zap.String("target_flow_id", in.TargetFlowID),
		zap.Bool("source_flow_deleted", result.SourceFlowDeleted))

	for _, edge := range removedEdges {
		s.publisher.Publish(in.UserID, events.NewEdgeEvent(events.KindEdgeDeleted, edge))
	}
	s.publisher.Publish(in.UserID, events.NewPodEvent(events.KindPodMoved, moved))
	return result, nil
}

func (s *MoveService) autoLink(ctx context.Context, moved *entities.Pod, targetPodID, userID string) (*entities.Edge, error) {
	if _, err := s.pods.Get(ctx, moved.FlowID, targetPodID); err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewValidationError("auto-link target pod does not exist in the target flow")
		}
		return nil, err
	}

	edge, err := entities.NewEdge(moved.FlowID, moved.ID, targetPodID, userID)
	if err != nil {
		return nil, err
	}
	return s.edges.Put(ctx, edge, 0)
}

// deleteSourceIfEmpty removes the source flow only when its pod count is
// zero. A non-empty flow aborts the delete, never the move.
func (s *MoveService) deleteSourceIfEmpty(ctx context.Context, flowID string) (bool, error) {
	count, err := s.pods.CountByFlow(ctx, flowID)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, pkgerrors.NewInvariantError("source flow is not empty after move")
	}
	if err := s.flows.Delete(ctx, flowID); err != nil {
		return false, err
	}
	return true, nil
}
