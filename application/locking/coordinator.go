// Package locking coordinates advisory pod locks on top of the conditional
// writes provided by the lock store.
package locking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"flopods-backend/application/ports"
)

// DefaultLockTTL is how long a lock may sit untouched before another
// holder is allowed to reclaim it.
const DefaultLockTTL = 90 * time.Second

// Coordinator hands out advisory per-pod locks. Locks are cooperative:
// they signal editing intent to other clients but nothing enforces them on
// writes. The coordinator tracks which pods each holder has locked so a
// disconnect can release them all in one call.
type Coordinator struct {
	locks  ports.PodLockStore
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	holders map[string]map[string]struct{} // holder -> pod ids
}

// NewCoordinator creates a lock coordinator. A non-positive ttl falls back
// to DefaultLockTTL.
func NewCoordinator(locks ports.PodLockStore, ttl time.Duration, logger *zap.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Coordinator{
		locks:   locks,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		holders: make(map[string]map[string]struct{}),
	}
}

// Acquire takes the lock on podID for holder. Succeeds when the pod is
// unlocked, already held by holder, or the current lock is older than the
// TTL. Returns ErrLockHeld when someone else holds a fresh lock.
func (c *Coordinator) Acquire(ctx context.Context, podID, holder string) error {
	now := c.now().UTC()
	staleBefore := now.Add(-c.ttl)

	if err := c.locks.Acquire(ctx, podID, holder, staleBefore, now); err != nil {
		c.logger.Debug("lock acquire rejected",
			zap.String("pod_id", podID),
			zap.String("holder", holder),
			zap.Error(err))
		return err
	}

	c.mu.Lock()
	if c.holders[holder] == nil {
		c.holders[holder] = make(map[string]struct{})
	}
	c.holders[holder][podID] = struct{}{}
	c.mu.Unlock()

	c.logger.Debug("lock acquired",
		zap.String("pod_id", podID),
		zap.String("holder", holder))
	return nil
}

// Release drops the lock on podID. Releasing an unlocked pod succeeds;
// releasing a lock held by someone else returns ErrNotLockHolder.
func (c *Coordinator) Release(ctx context.Context, podID, holder string) error {
	if err := c.locks.Release(ctx, podID, holder); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.holders[holder], podID)
	if len(c.holders[holder]) == 0 {
		delete(c.holders, holder)
	}
	c.mu.Unlock()

	c.logger.Debug("lock released",
		zap.String("pod_id", podID),
		zap.String("holder", holder))
	return nil
}

// ReleaseAll drops every lock the holder is known to hold. Called on
// session disconnect. Individual release failures are logged and skipped
// so one bad pod cannot strand the rest.
func (c *Coordinator) ReleaseAll(ctx context.Context, holder string) {
	c.mu.Lock()
	podIDs := make([]string, 0, len(c.holders[holder]))
	for podID := range c.holders[holder] {
		podIDs = append(podIDs, podID)
	}
	delete(c.holders, holder)
	c.mu.Unlock()

	for _, podID := range podIDs {
		if err := c.locks.Release(ctx, podID, holder); err != nil {
			c.logger.Warn("failed to release lock on disconnect",
				zap.String("pod_id", podID),
				zap.String("holder", holder),
				zap.Error(err))
		}
	}

	if len(podIDs) > 0 {
		c.logger.Info("released locks on disconnect",
			zap.String("holder", holder),
			zap.Int("count", len(podIDs)))
	}
}

// Held reports how many locks the holder currently has, per the in-process
// index.
func (c *Coordinator) Held(holder string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.holders[holder])
}
