package services

import (
	"context"

	"go.uber.org/zap"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/events"
)

// FlowService manages flow containers within a workspace
type FlowService struct {
	flows     ports.FlowRepository
	pods      ports.PodRepository
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewFlowService wires a flow service
func NewFlowService(
	flows ports.FlowRepository,
	pods ports.PodRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *FlowService {
	return &FlowService{
		flows:     flows,
		pods:      pods,
		publisher: publisher,
		logger:    logger,
	}
}

// Create makes a new empty flow in the workspace
func (s *FlowService) Create(ctx context.Context, workspaceID, name, userID string) (*entities.Flow, error) {
	flow, err := entities.NewFlow(workspaceID, name, userID)
	if err != nil {
		return nil, err
	}
	if err := s.flows.Create(ctx, flow); err != nil {
		return nil, err
	}

	s.logger.Info("flow created",
		zap.String("flow_id", flow.ID),
		zap.String("workspace_id", workspaceID))
	return flow, nil
}

// Get fetches one flow
func (s *FlowService) Get(ctx context.Context, flowID string) (*entities.Flow, error) {
	return s.flows.Get(ctx, flowID)
}

// List returns the workspace's flows
func (s *FlowService) List(ctx context.Context, workspaceID string) ([]*entities.Flow, error) {
	return s.flows.ListByWorkspace(ctx, workspaceID)
}

// Delete removes a flow and everything it contains
func (s *FlowService) Delete(ctx context.Context, flowID, userID string) error {
	if _, err := s.flows.Get(ctx, flowID); err != nil {
		return err
	}

	count, err := s.pods.CountByFlow(ctx, flowID)
	if err != nil {
		return err
	}
	if err := s.flows.Delete(ctx, flowID); err != nil {
		return err
	}

	s.logger.Info("flow deleted",
		zap.String("flow_id", flowID),
		zap.Int("pods_removed", count))
	s.publisher.Publish(userID, events.NewFlowDeleted(flowID))
	return nil
}
