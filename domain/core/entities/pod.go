package entities

import (
	"time"

	"flopods-backend/domain/core/valueobjects"
	pkgerrors "flopods-backend/pkg/errors"
)

// Pod is a typed node in the collaborative workflow graph. Identity, kind
// and owning workspace are fixed at creation; content, position, context
// references, version and the advisory lock mutate over its lifetime.
type Pod struct {
	ID          string                    `json:"id"`
	FlowID      string                    `json:"flowId"`
	WorkspaceID string                    `json:"workspaceId"`
	Type        valueobjects.PodKind      `json:"type"`
	Position    valueobjects.Position     `json:"position"`
	Content     valueobjects.PodContent   `json:"content"`
	ContextPods []string                  `json:"contextPods,omitempty"`
	Version     int                       `json:"version"`
	CreatedBy   string                    `json:"createdBy"`
	CreatedAt   time.Time                 `json:"createdAt"`
	UpdatedAt   time.Time                 `json:"updatedAt"`
	LockedBy    string                    `json:"lockedBy,omitempty"`
	LockedAt    *time.Time                `json:"lockedAt,omitempty"`
}

// NewPod creates a pod with validated content. New pods start at version 1.
func NewPod(flowID, workspaceID, createdBy string, content valueobjects.PodContent, position valueobjects.Position) (*Pod, error) {
	if flowID == "" {
		return nil, pkgerrors.NewValidationError("flowId cannot be empty")
	}
	if workspaceID == "" {
		return nil, pkgerrors.NewValidationError("workspaceId cannot be empty")
	}
	if createdBy == "" {
		return nil, pkgerrors.NewValidationError("createdBy cannot be empty")
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Pod{
		ID:          valueobjects.NewID(),
		FlowID:      flowID,
		WorkspaceID: workspaceID,
		Type:        content.Kind,
		Position:    position,
		Content:     content,
		ContextPods: []string{},
		Version:     1,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateContent replaces the pod's content payload. The kind is fixed at
// creation, so a payload of a different kind is rejected.
func (p *Pod) UpdateContent(content valueobjects.PodContent) error {
	if err := content.Validate(); err != nil {
		return err
	}
	if content.Kind != p.Type {
		return pkgerrors.NewValidationError("pod kind cannot change after creation")
	}

	p.Content = content
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MoveTo repositions the pod on the canvas
func (p *Pod) MoveTo(position valueobjects.Position) {
	if position.Equals(p.Position) {
		return
	}
	p.Position = position
	p.UpdatedAt = time.Now().UTC()
}

// SetContextPods replaces the pod's context-pod references
func (p *Pod) SetContextPods(podIDs []string) {
	refs := make([]string, len(podIDs))
	copy(refs, podIDs)
	p.ContextPods = refs
	p.UpdatedAt = time.Now().UTC()
}

// Locked reports whether the pod carries an advisory lock
func (p *Pod) Locked() bool {
	return p.LockedBy != ""
}

// LockStale reports whether the pod's lock is older than ttl as of now.
// A stale lock is treated as abandoned and may be reclaimed.
func (p *Pod) LockStale(ttl time.Duration, now time.Time) bool {
	if !p.Locked() || p.LockedAt == nil {
		return false
	}
	return now.Sub(*p.LockedAt) > ttl
}

// Lock records holder as the advisory lock owner
func (p *Pod) Lock(holder string, at time.Time) {
	p.LockedBy = holder
	t := at
	p.LockedAt = &t
}

// Unlock clears the advisory lock
func (p *Pod) Unlock() {
	p.LockedBy = ""
	p.LockedAt = nil
}

// Clone returns a deep copy, so stores can hand out snapshots safely
func (p *Pod) Clone() *Pod {
	clone := *p
	clone.ContextPods = make([]string, len(p.ContextPods))
	copy(clone.ContextPods, p.ContextPods)
	if p.LockedAt != nil {
		t := *p.LockedAt
		clone.LockedAt = &t
	}
	return &clone
}
