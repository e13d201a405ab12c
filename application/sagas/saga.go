// Package sagas tracks compensations for multi-write operations. A service
// registers one undo per completed step; on failure the registered undos run
// in reverse order. Compensation failures are logged and do not stop the
// remaining undos.
package sagas

import (
	"context"

	"go.uber.org/zap"
)

type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// Saga collects the compensations of an in-progress operation. It is not
// safe for concurrent use; each operation builds its own saga.
type Saga struct {
	name          string
	logger        *zap.Logger
	compensations []compensation
	rolledBack    bool
}

// New starts an empty saga. The name tags rollback log lines.
func New(name string, logger *zap.Logger) *Saga {
	return &Saga{name: name, logger: logger}
}

// Completed registers the undo for a step that just succeeded.
func (s *Saga) Completed(step string, undo func(ctx context.Context) error) {
	s.compensations = append(s.compensations, compensation{step: step, undo: undo})
}

// Rollback runs the registered undos newest first. A failing undo is logged
// and the older ones still run. Calling Rollback twice is a no-op.
func (s *Saga) Rollback(ctx context.Context) {
	if s.rolledBack {
		return
	}
	s.rolledBack = true

	for i := len(s.compensations) - 1; i >= 0; i-- {
		c := s.compensations[i]
		if err := c.undo(ctx); err != nil {
			s.logger.Error("saga compensation failed",
				zap.String("saga", s.name),
				zap.String("step", c.step),
				zap.Error(err))
		}
	}
}

// Steps reports how many compensations are registered.
func (s *Saga) Steps() int {
	return len(s.compensations)
}
