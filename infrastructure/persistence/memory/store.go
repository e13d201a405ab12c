// Package memory provides in-process implementations of the persistence
// ports, used in tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	pkgerrors "flopods-backend/pkg/errors"
)

// Store keeps the whole graph in process memory behind one mutex. It honors
// the same conditional-write contract as the DynamoDB stores: version-checked
// puts, atomic cross-flow relocation, conditional lock writes.
type Store struct {
	mu            sync.RWMutex
	pods          map[string]map[string]*entities.Pod          // flowID -> podID -> pod
	edges         map[string]map[string]*entities.Edge         // flowID -> edgeID -> edge
	flows         map[string]*entities.Flow                    // flowID -> flow
	podFlows      map[string]string                            // podID -> flowID
	notifications map[string]map[string]*entities.Notification // userID -> id -> notification
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		pods:          make(map[string]map[string]*entities.Pod),
		edges:         make(map[string]map[string]*entities.Edge),
		flows:         make(map[string]*entities.Flow),
		podFlows:      make(map[string]string),
		notifications: make(map[string]map[string]*entities.Notification),
	}
}

// Pods returns the pod repository view of the store
func (s *Store) Pods() *PodStore { return &PodStore{store: s} }

// Edges returns the edge repository view of the store
func (s *Store) Edges() *EdgeStore { return &EdgeStore{store: s} }

// Flows returns the flow repository view of the store
func (s *Store) Flows() *FlowStore { return &FlowStore{store: s} }

// Notifications returns the notification repository view of the store
func (s *Store) Notifications() *NotificationStore { return &NotificationStore{store: s} }

// Locks returns the pod lock store view of the store
func (s *Store) Locks() *LockStore { return &LockStore{store: s} }

// PodStore implements ports.PodRepository over the shared store
type PodStore struct {
	store *Store
}

// Get fetches a pod by flow and id
func (r *PodStore) Get(ctx context.Context, flowID, podID string) (*entities.Pod, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	pod, ok := r.store.pods[flowID][podID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("pod")
	}
	return pod.Clone(), nil
}

// FindByID fetches a pod when only its id is known
func (r *PodStore) FindByID(ctx context.Context, podID string) (*entities.Pod, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.store.findPodLocked(podID)
}

// Put writes a pod conditionally on expectedVersion
func (r *PodStore) Put(ctx context.Context, pod *entities.Pod, expectedVersion int) (*entities.Pod, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored := r.store.pods[pod.FlowID][pod.ID]

	if expectedVersion == 0 {
		if stored != nil || r.store.podFlows[pod.ID] != "" {
			return nil, pkgerrors.NewVersionConflictError("pod", 0)
		}
		created := pod.Clone()
		created.Version = 1
		r.store.insertPodLocked(created)
		return created.Clone(), nil
	}

	if stored == nil {
		return nil, pkgerrors.NewNotFoundError("pod")
	}
	if stored.Version != expectedVersion {
		return nil, pkgerrors.NewVersionConflictError("pod", expectedVersion)
	}

	updated := pod.Clone()
	updated.Version = expectedVersion + 1
	// Lock state is owned by the lock store, not by content writes
	updated.LockedBy = stored.LockedBy
	updated.LockedAt = stored.LockedAt
	r.store.insertPodLocked(updated)
	return updated.Clone(), nil
}

// Move relocates a pod to targetFlowID as one atomic action
func (r *PodStore) Move(ctx context.Context, pod *entities.Pod, targetFlowID string, expectedVersion int) (*entities.Pod, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sourceFlowID, ok := r.store.podFlows[pod.ID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("pod")
	}
	stored := r.store.pods[sourceFlowID][pod.ID]
	if stored == nil {
		return nil, pkgerrors.NewNotFoundError("pod")
	}
	if stored.Version != expectedVersion {
		return nil, pkgerrors.NewVersionConflictError("pod", expectedVersion)
	}

	moved := pod.Clone()
	moved.FlowID = targetFlowID
	moved.Version = expectedVersion + 1
	moved.UpdatedAt = time.Now().UTC()

	delete(r.store.pods[sourceFlowID], pod.ID)
	r.store.insertPodLocked(moved)
	return moved.Clone(), nil
}

// Delete removes a pod
func (r *PodStore) Delete(ctx context.Context, flowID, podID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.pods[flowID][podID]; !ok {
		return pkgerrors.NewNotFoundError("pod")
	}
	delete(r.store.pods[flowID], podID)
	delete(r.store.podFlows, podID)
	return nil
}

// ListByFlow pages through a flow's pods ordered by id
func (r *PodStore) ListByFlow(ctx context.Context, flowID string, page ports.Page) (*ports.PodPage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := make([]string, 0, len(r.store.pods[flowID]))
	for id := range r.store.pods[flowID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	limit := page.Limit
	if limit <= 0 {
		limit = len(ids)
	}

	result := &ports.PodPage{}
	for _, id := range ids {
		if page.Cursor != "" && id <= page.Cursor {
			continue
		}
		if len(result.Pods) == limit {
			result.NextCursor = result.Pods[len(result.Pods)-1].ID
			break
		}
		result.Pods = append(result.Pods, r.store.pods[flowID][id].Clone())
	}
	return result, nil
}

// CountByFlow returns the number of pods in a flow
func (r *PodStore) CountByFlow(ctx context.Context, flowID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.pods[flowID]), nil
}

// LockStore implements ports.PodLockStore over the shared store
type LockStore struct {
	store *Store
}

// Acquire writes the advisory lock if the pod is unlocked, already held by
// holder, or the existing lock predates staleBefore
func (l *LockStore) Acquire(ctx context.Context, podID, holder string, staleBefore, now time.Time) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	flowID, ok := l.store.podFlows[podID]
	if !ok {
		return pkgerrors.NewNotFoundError("pod")
	}
	pod := l.store.pods[flowID][podID]

	if pod.Locked() && pod.LockedBy != holder {
		if pod.LockedAt == nil || !pod.LockedAt.Before(staleBefore) {
			return pkgerrors.NewLockHeldError(podID, pod.LockedBy)
		}
	}

	pod.Lock(holder, now)
	return nil
}

// Release clears the advisory lock. Releasing an unlocked pod is a no-op;
// releasing someone else's lock fails.
func (l *LockStore) Release(ctx context.Context, podID, holder string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	flowID, ok := l.store.podFlows[podID]
	if !ok {
		return pkgerrors.NewNotFoundError("pod")
	}
	pod := l.store.pods[flowID][podID]

	if !pod.Locked() {
		return nil
	}
	if pod.LockedBy != holder {
		return pkgerrors.NewNotLockHolderError(podID)
	}

	pod.Unlock()
	return nil
}

func (s *Store) findPodLocked(podID string) (*entities.Pod, error) {
	flowID, ok := s.podFlows[podID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("pod")
	}
	pod, ok := s.pods[flowID][podID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("pod")
	}
	return pod.Clone(), nil
}

func (s *Store) insertPodLocked(pod *entities.Pod) {
	if s.pods[pod.FlowID] == nil {
		s.pods[pod.FlowID] = make(map[string]*entities.Pod)
	}
	s.pods[pod.FlowID][pod.ID] = pod
	s.podFlows[pod.ID] = pod.FlowID
}
