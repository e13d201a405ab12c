package memory

import (
	"context"
	"sort"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	pkgerrors "flopods-backend/pkg/errors"
)

// EdgeStore implements ports.EdgeRepository over the shared store
type EdgeStore struct {
	store *Store
}

// Get fetches an edge by flow and id
func (r *EdgeStore) Get(ctx context.Context, flowID, edgeID string) (*entities.Edge, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	edge, ok := r.store.edges[flowID][edgeID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("edge")
	}
	return edge.Clone(), nil
}

// Put writes an edge conditionally on expectedVersion
func (r *EdgeStore) Put(ctx context.Context, edge *entities.Edge, expectedVersion int) (*entities.Edge, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored := r.store.edges[edge.FlowID][edge.ID]

	if expectedVersion == 0 {
		if stored != nil {
			return nil, pkgerrors.NewVersionConflictError("edge", 0)
		}
		created := edge.Clone()
		created.Version = 1
		r.store.insertEdgeLocked(created)
		return created.Clone(), nil
	}

	if stored == nil {
		return nil, pkgerrors.NewNotFoundError("edge")
	}
	if stored.Version != expectedVersion {
		return nil, pkgerrors.NewVersionConflictError("edge", expectedVersion)
	}

	updated := edge.Clone()
	updated.Version = expectedVersion + 1
	r.store.insertEdgeLocked(updated)
	return updated.Clone(), nil
}

// Delete removes an edge
func (r *EdgeStore) Delete(ctx context.Context, flowID, edgeID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.edges[flowID][edgeID]; !ok {
		return pkgerrors.NewNotFoundError("edge")
	}
	delete(r.store.edges[flowID], edgeID)
	return nil
}

// ListByFlow pages through a flow's edges ordered by id
func (r *EdgeStore) ListByFlow(ctx context.Context, flowID string, page ports.Page) (*ports.EdgePage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := make([]string, 0, len(r.store.edges[flowID]))
	for id := range r.store.edges[flowID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	limit := page.Limit
	if limit <= 0 {
		limit = len(ids)
	}

	result := &ports.EdgePage{}
	for _, id := range ids {
		if page.Cursor != "" && id <= page.Cursor {
			continue
		}
		if len(result.Edges) == limit {
			result.NextCursor = result.Edges[len(result.Edges)-1].ID
			break
		}
		result.Edges = append(result.Edges, r.store.edges[flowID][id].Clone())
	}
	return result, nil
}

// DeleteByPod removes every edge touching podID and returns the removed
// edges so callers can restore them on compensation
func (r *EdgeStore) DeleteByPod(ctx context.Context, flowID, podID string) ([]*entities.Edge, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var removed []*entities.Edge
	for id, edge := range r.store.edges[flowID] {
		if edge.Touches(podID) {
			removed = append(removed, edge.Clone())
			delete(r.store.edges[flowID], id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return removed, nil
}

func (s *Store) insertEdgeLocked(edge *entities.Edge) {
	if s.edges[edge.FlowID] == nil {
		s.edges[edge.FlowID] = make(map[string]*entities.Edge)
	}
	s.edges[edge.FlowID][edge.ID] = edge
}

// FlowStore implements ports.FlowRepository over the shared store
type FlowStore struct {
	store *Store
}

// Get fetches a flow by id
func (r *FlowStore) Get(ctx context.Context, flowID string) (*entities.Flow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	flow, ok := r.store.flows[flowID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("flow")
	}
	return flow.Clone(), nil
}

// Create stores a new flow
func (r *FlowStore) Create(ctx context.Context, flow *entities.Flow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.flows[flow.ID]; ok {
		return pkgerrors.NewVersionConflictError("flow", 0)
	}
	r.store.flows[flow.ID] = flow.Clone()
	return nil
}

// Delete removes a flow and everything it contains
func (r *FlowStore) Delete(ctx context.Context, flowID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.flows[flowID]; !ok {
		return pkgerrors.NewNotFoundError("flow")
	}
	for podID := range r.store.pods[flowID] {
		delete(r.store.podFlows, podID)
	}
	delete(r.store.pods, flowID)
	delete(r.store.edges, flowID)
	delete(r.store.flows, flowID)
	return nil
}

// ListByWorkspace returns a workspace's flows ordered by name
func (r *FlowStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*entities.Flow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var flows []*entities.Flow
	for _, flow := range r.store.flows {
		if flow.WorkspaceID == workspaceID {
			flows = append(flows, flow.Clone())
		}
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].Name < flows[j].Name })
	return flows, nil
}
