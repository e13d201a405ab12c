package entities

import (
	"time"

	"flopods-backend/domain/core/valueobjects"
	pkgerrors "flopods-backend/pkg/errors"
)

// Edge is a directed connection between two pods' named handles, scoped to
// one flow. Both endpoints must live in the same flow as the edge; an edge
// whose endpoint is deleted must be removed together with the endpoint.
type Edge struct {
	ID           string    `json:"id"`
	FlowID       string    `json:"flowId"`
	SourceID     string    `json:"sourceId"`
	TargetID     string    `json:"targetId"`
	SourceHandle string    `json:"sourceHandle,omitempty"`
	TargetHandle string    `json:"targetHandle,omitempty"`
	Animated     bool      `json:"animated"`
	Version      int       `json:"version"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewEdge creates an edge between two pods in flowID
func NewEdge(flowID, sourceID, targetID, createdBy string) (*Edge, error) {
	if flowID == "" {
		return nil, pkgerrors.NewValidationError("flowId cannot be empty")
	}
	if sourceID == "" || targetID == "" {
		return nil, pkgerrors.NewValidationError("edge requires both endpoints")
	}
	if sourceID == targetID {
		return nil, pkgerrors.NewValidationError("edge cannot connect a pod to itself")
	}

	return &Edge{
		ID:        valueobjects.NewID(),
		FlowID:    flowID,
		SourceID:  sourceID,
		TargetID:  targetID,
		Version:   1,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Touches reports whether the edge references podID at either end
func (e *Edge) Touches(podID string) bool {
	return e.SourceID == podID || e.TargetID == podID
}

// Clone returns a copy of the edge
func (e *Edge) Clone() *Edge {
	clone := *e
	return &clone
}
