package entities

import (
	"time"

	"flopods-backend/domain/core/valueobjects"
	pkgerrors "flopods-backend/pkg/errors"
)

// Flow is a named graph container inside a workspace. It exclusively owns
// its pods and edges; deleting a flow cascades to both.
type Flow struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewFlow creates a flow under a workspace
func NewFlow(workspaceID, name, createdBy string) (*Flow, error) {
	if workspaceID == "" {
		return nil, pkgerrors.NewValidationError("workspaceId cannot be empty")
	}
	if name == "" {
		return nil, pkgerrors.NewValidationError("flow name cannot be empty")
	}

	now := time.Now().UTC()
	return &Flow{
		ID:          valueobjects.NewID(),
		WorkspaceID: workspaceID,
		Name:        name,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Rename changes the flow's display name
func (f *Flow) Rename(name string) error {
	if name == "" {
		return pkgerrors.NewValidationError("flow name cannot be empty")
	}
	f.Name = name
	f.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a copy of the flow
func (f *Flow) Clone() *Flow {
	clone := *f
	return &clone
}
