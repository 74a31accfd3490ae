package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/polewatch/control-plane/pkg/models"
)

// fakeNode is the mutable per-node state held by fakeRepo.
type fakeNode struct {
	lastHeartbeat   *time.Time
	status          models.NodeStatus
	statusChangedAt time.Time
	revision        int64
}

// fakeRepo is an in-memory NodeRepository with hooks for error and race
// injection.
type fakeRepo struct {
	mu    sync.Mutex
	nodes map[int64]*fakeNode

	listErr error
	getErr  map[int64]error

	// afterGet runs after GetNodeForUpdate returns, before the caller can
	// issue its conditional write. Used to simulate a foreground writer
	// racing the scanner.
	afterGet func(id int64)

	writes int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nodes:  make(map[int64]*fakeNode),
		getErr: make(map[int64]error),
	}
}

func (r *fakeRepo) addNode(id int64, status models.NodeStatus, lastHeartbeat *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id] = &fakeNode{
		lastHeartbeat: lastHeartbeat,
		status:        status,
		revision:      1,
	}
}

func (r *fakeRepo) node(id int64) fakeNode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.nodes[id]
}

func (r *fakeRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// bumpRevision simulates a foreground heartbeat write landing on the node.
func (r *fakeRepo) bumpRevision(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[id]; ok {
		n.revision++
	}
}

func (r *fakeRepo) ListAllNodes(ctx context.Context) ([]NodeSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}

	snapshots := make([]NodeSnapshot, 0, len(r.nodes))
	for id, n := range r.nodes {
		snapshots = append(snapshots, NodeSnapshot{
			ID:            id,
			LastHeartbeat: n.lastHeartbeat,
			Status:        n.status,
		})
	}
	return snapshots, nil
}

func (r *fakeRepo) GetNodeForUpdate(ctx context.Context, id int64) (NodeRecord, error) {
	r.mu.Lock()
	if err := r.getErr[id]; err != nil {
		r.mu.Unlock()
		return NodeRecord{}, err
	}
	n, ok := r.nodes[id]
	if !ok {
		r.mu.Unlock()
		return NodeRecord{}, ErrNodeNotFound
	}
	rec := NodeRecord{Status: n.status, Revision: n.revision}
	r.mu.Unlock()

	if r.afterGet != nil {
		r.afterGet(id)
	}
	return rec, nil
}

func (r *fakeRepo) ConditionalUpdateStatus(ctx context.Context, id int64, expectedRevision int64, next models.NodeStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	if n.revision != expectedRevision {
		return ErrRevisionMismatch
	}

	n.status = next
	n.statusChangedAt = now
	n.revision++
	r.writes++
	return nil
}

// notifyCall records a single notification dispatch.
type notifyCall struct {
	nodeID int64
	kind   EventKind
}

// fakeNotifier records dispatched notifications and can fail per channel.
type fakeNotifier struct {
	mu       sync.Mutex
	pushes   []notifyCall
	emails   []notifyCall
	pushErr  error
	emailErr error
}

func (n *fakeNotifier) NotifyStaffPush(ctx context.Context, nodeID int64, kind EventKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pushErr != nil {
		return n.pushErr
	}
	n.pushes = append(n.pushes, notifyCall{nodeID: nodeID, kind: kind})
	return nil
}

func (n *fakeNotifier) NotifyEmail(ctx context.Context, nodeID int64, kind EventKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.emailErr != nil {
		return n.emailErr
	}
	n.emails = append(n.emails, notifyCall{nodeID: nodeID, kind: kind})
	return nil
}

func (n *fakeNotifier) pushCalls() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.pushes...)
}

func (n *fakeNotifier) emailCalls() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.emails...)
}
