package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/polewatch/control-plane/pkg/models"
)

// ErrNodeNotFound is returned when a node id does not exist in the store.
var ErrNodeNotFound = errors.New("node not found")

// ErrRevisionMismatch signals that a conditional status write lost the race:
// the node's revision moved between the read and the write. It is an expected
// concurrency outcome, not a failure.
var ErrRevisionMismatch = errors.New("node revision mismatch")

// NodeSnapshot is the per-node view used by a scan cycle. Snapshot reads need
// not be transactionally consistent across nodes; each node is handled
// independently.
type NodeSnapshot struct {
	ID            int64
	LastHeartbeat *time.Time
	Status        models.NodeStatus
}

// NodeRecord is the fresh (status, revision) pair read immediately before a
// conditional status write.
type NodeRecord struct {
	Status   models.NodeStatus
	Revision int64
}

// NodeRepository is the persistence contract the monitor depends on. The
// production implementation lives in internal/store; tests supply fakes.
type NodeRepository interface {
	// ListAllNodes returns a snapshot of every known node.
	ListAllNodes(ctx context.Context) ([]NodeSnapshot, error)

	// GetNodeForUpdate returns the node's current status and revision.
	GetNodeForUpdate(ctx context.Context, id int64) (NodeRecord, error)

	// ConditionalUpdateStatus sets status and status_changed_at and bumps the
	// revision, but only if the stored revision still equals expectedRevision.
	// Returns ErrRevisionMismatch when the revision moved.
	ConditionalUpdateStatus(ctx context.Context, id int64, expectedRevision int64, next models.NodeStatus, now time.Time) error
}

// NotificationGateway fans a detected transition out to staff. Both channels
// are best-effort; errors are surfaced so the scanner can count them, but a
// failed notification never rolls back an applied transition.
type NotificationGateway interface {
	NotifyStaffPush(ctx context.Context, nodeID int64, kind EventKind) error
	NotifyEmail(ctx context.Context, nodeID int64, kind EventKind) error
}

// EventKind names the two transitions the monitor can detect.
type EventKind string

const (
	EventKindFaultDetected EventKind = "fault_detected"
	EventKindRecovered     EventKind = "recovered"
)

// TransitionEvent describes one genuine liveness transition. It is ephemeral:
// produced by a scan cycle, consumed once by notification dispatch, never
// persisted or retried.
type TransitionEvent struct {
	NodeID     int64
	From       models.NodeStatus
	To         models.NodeStatus
	DetectedAt time.Time
}

// Kind maps the transition direction to its notification event kind.
func (e TransitionEvent) Kind() EventKind {
	if e.To == models.NodeStatusFaulty {
		return EventKindFaultDetected
	}
	return EventKindRecovered
}
