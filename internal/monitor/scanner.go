package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

// ScanSummary reports what a single scan cycle did.
type ScanSummary struct {
	Evaluated             int
	TransitionedToFaulty  int
	TransitionedToHealthy int
	Errors                int
}

// HeartbeatScanner walks a snapshot of all nodes once per cycle, detects
// liveness transitions and dispatches staff notifications for the transitions
// it genuinely applied.
type HeartbeatScanner struct {
	repo     NodeRepository
	applier  *TransitionApplier
	notifier NotificationGateway
	maxAge   time.Duration
	logger   *zap.Logger
	metrics  *Metrics
}

// NewHeartbeatScanner creates a heartbeat scanner. maxAge must be positive.
func NewHeartbeatScanner(repo NodeRepository, applier *TransitionApplier, notifier NotificationGateway, maxAge time.Duration, logger *zap.Logger) (*HeartbeatScanner, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("heartbeat max age must be positive, got %s", maxAge)
	}

	return &HeartbeatScanner{
		repo:     repo,
		applier:  applier,
		notifier: notifier,
		maxAge:   maxAge,
		logger:   logger,
		metrics:  NewMetrics(),
	}, nil
}

// RunCycle evaluates every node in the snapshot exactly once. Per-node
// failures are counted and skipped; one failing node never blocks detection
// on the others.
func (s *HeartbeatScanner) RunCycle(ctx context.Context, now time.Time) ScanSummary {
	started := time.Now()
	var summary ScanSummary

	snapshots, err := s.repo.ListAllNodes(ctx)
	if err != nil {
		s.logger.Error("failed to snapshot nodes, skipping cycle", zap.Error(err))
		summary.Errors++
		s.metrics.RecordCycle(summary, time.Since(started))
		return summary
	}

	for _, snap := range snapshots {
		summary.Evaluated++

		verdict := Evaluate(snap.LastHeartbeat, now, s.maxAge)
		if verdict == snap.Status {
			continue
		}

		outcome, err := s.applier.TryApply(ctx, snap.ID, snap.Status, verdict, now)
		if err != nil {
			s.logger.Error("transition attempt failed",
				zap.Int64("node_id", snap.ID),
				zap.String("verdict", string(verdict)),
				zap.Error(err),
			)
			summary.Errors++
			continue
		}

		if outcome != OutcomeApplied {
			// Already consistent or superseded by a concurrent writer; the
			// next cycle re-evaluates from fresh state.
			continue
		}

		event := TransitionEvent{
			NodeID:     snap.ID,
			From:       snap.Status,
			To:         verdict,
			DetectedAt: now,
		}

		switch verdict {
		case models.NodeStatusFaulty:
			summary.TransitionedToFaulty++
		case models.NodeStatusHealthy:
			summary.TransitionedToHealthy++
		}

		s.dispatch(ctx, event, &summary)
	}

	s.metrics.RecordCycle(summary, time.Since(started))

	s.logger.Info("heartbeat scan cycle finished",
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("to_faulty", summary.TransitionedToFaulty),
		zap.Int("to_healthy", summary.TransitionedToHealthy),
		zap.Int("errors", summary.Errors),
	)

	return summary
}

// dispatch fans one transition out to both channels. Failures are counted and
// logged for manual follow-up; the applied transition stands regardless. The
// node's persisted liveness state is authoritative even when staff were not
// successfully told about it.
func (s *HeartbeatScanner) dispatch(ctx context.Context, event TransitionEvent, summary *ScanSummary) {
	kind := event.Kind()

	if err := s.notifier.NotifyStaffPush(ctx, event.NodeID, kind); err != nil {
		s.logger.Error("staff push notification lost",
			zap.Int64("node_id", event.NodeID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		s.metrics.RecordMissedNotification("push")
		summary.Errors++
	}

	if err := s.notifier.NotifyEmail(ctx, event.NodeID, kind); err != nil {
		s.logger.Error("email notification lost",
			zap.Int64("node_id", event.NodeID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		s.metrics.RecordMissedNotification("email")
		summary.Errors++
	}
}
