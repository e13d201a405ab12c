package entities

import (
	"time"

	"flopods-backend/domain/core/valueobjects"
	pkgerrors "flopods-backend/pkg/errors"
)

// Workspace is the tenant boundary. Its identity is immutable once created;
// flows (and through them pods and edges) hang off a workspace.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewWorkspace creates a workspace owned by ownerID
func NewWorkspace(name, ownerID string) (*Workspace, error) {
	if name == "" {
		return nil, pkgerrors.NewValidationError("workspace name cannot be empty")
	}
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("ownerId cannot be empty")
	}

	return &Workspace{
		ID:        valueobjects.NewID(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}, nil
}
