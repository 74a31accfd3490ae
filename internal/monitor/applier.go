package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

// Outcome reports what a TryApply call actually did.
type Outcome int

const (
	// OutcomeApplied means this call performed the transition. It is the
	// at-most-once claim that gates notification dispatch.
	OutcomeApplied Outcome = iota

	// OutcomeAlreadyInState means the node already had the target status, so
	// nothing was written. Repeated stale cycles land here instead of
	// producing duplicate notifications.
	OutcomeAlreadyInState

	// OutcomeConflict means a concurrent writer got there first: either the
	// fresh status no longer matched the caller's expectation, or the
	// revision moved underneath the conditional write. The next scan cycle
	// re-evaluates from fresh state.
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyInState:
		return "already_in_state"
	case OutcomeConflict:
		return "conflict"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TransitionApplier applies liveness transitions through the repository's
// revision-guarded write. Both the scanner and foreground workflows funnel
// status changes through it.
type TransitionApplier struct {
	repo   NodeRepository
	logger *zap.Logger
}

// NewTransitionApplier creates a transition applier
func NewTransitionApplier(repo NodeRepository, logger *zap.Logger) *TransitionApplier {
	return &TransitionApplier{repo: repo, logger: logger}
}

// TryApply attempts to move a node from expected to next. The write happens
// only when the fresh status still equals expected and the revision observed
// during the read has not moved by the time of the write.
func (a *TransitionApplier) TryApply(ctx context.Context, nodeID int64, expected, next models.NodeStatus, now time.Time) (Outcome, error) {
	rec, err := a.repo.GetNodeForUpdate(ctx, nodeID)
	if err != nil {
		return OutcomeConflict, fmt.Errorf("failed to read node %d for update: %w", nodeID, err)
	}

	if rec.Status == next {
		return OutcomeAlreadyInState, nil
	}

	if rec.Status != expected {
		a.logger.Debug("transition superseded by concurrent writer",
			zap.Int64("node_id", nodeID),
			zap.String("expected", string(expected)),
			zap.String("current", string(rec.Status)),
		)
		return OutcomeConflict, nil
	}

	err = a.repo.ConditionalUpdateStatus(ctx, nodeID, rec.Revision, next, now)
	if errors.Is(err, ErrRevisionMismatch) {
		a.logger.Debug("conditional write lost the race",
			zap.Int64("node_id", nodeID),
			zap.Int64("observed_revision", rec.Revision),
		)
		return OutcomeConflict, nil
	}
	if err != nil {
		return OutcomeConflict, fmt.Errorf("failed to apply transition for node %d: %w", nodeID, err)
	}

	a.logger.Info("node status transition applied",
		zap.Int64("node_id", nodeID),
		zap.String("from", string(expected)),
		zap.String("to", string(next)),
	)

	return OutcomeApplied, nil
}
