package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polewatch/control-plane/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScanner(t *testing.T, repo *fakeRepo, notifier *fakeNotifier, maxAge time.Duration) *HeartbeatScanner {
	t.Helper()
	applier := NewTransitionApplier(repo, zap.NewNop())
	scanner, err := NewHeartbeatScanner(repo, applier, notifier, maxAge, zap.NewNop())
	require.NoError(t, err)
	return scanner
}

func TestNewHeartbeatScannerRejectsInvalidMaxAge(t *testing.T) {
	repo := newFakeRepo()
	applier := NewTransitionApplier(repo, zap.NewNop())

	_, err := NewHeartbeatScanner(repo, applier, &fakeNotifier{}, 0, zap.NewNop())
	require.Error(t, err)

	_, err = NewHeartbeatScanner(repo, applier, &fakeNotifier{}, -time.Second, zap.NewNop())
	require.Error(t, err)
}

func TestRunCycleDetectsStaleNode(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 300 * time.Second

	repo := newFakeRepo()
	repo.addNode(1, models.NodeStatusHealthy, &t0)
	notifier := &fakeNotifier{}
	scanner := newTestScanner(t, repo, notifier, maxAge)

	summary := scanner.RunCycle(context.Background(), t0.Add(301*time.Second))

	assert.Equal(t, 1, summary.Evaluated)
	assert.Equal(t, 1, summary.TransitionedToFaulty)
	assert.Equal(t, 0, summary.TransitionedToHealthy)
	assert.Equal(t, 0, summary.Errors)

	assert.Equal(t, models.NodeStatusFaulty, repo.node(1).status)

	require.Len(t, notifier.pushCalls(), 1)
	require.Len(t, notifier.emailCalls(), 1)
	assert.Equal(t, EventKindFaultDetected, notifier.pushCalls()[0].kind)
	assert.Equal(t, int64(1), notifier.pushCalls()[0].nodeID)
}

func TestRunCycleLeavesFreshNodeAlone(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newFakeRepo()
	repo.addNode(1, models.NodeStatusHealthy, &t0)
	notifier := &fakeNotifier{}
	scanner := newTestScanner(t, repo, notifier, 300*time.Second)

	summary := scanner.RunCycle(context.Background(), t0.Add(299*time.Second))

	assert.Equal(t, 1, summary.Evaluated)
	assert.Equal(t, 0, summary.TransitionedToFaulty)
	assert.Equal(t, models.NodeStatusHealthy, repo.node(1).status)
	assert.Empty(t, notifier.pushCalls())
	assert.Empty(t, notifier.emailCalls())
	assert.Equal(t, 0, repo.writeCount())
}

func TestRunCycleDetectsRecovery(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newFakeRepo()
	fresh := t0.Add(-10 * time.Second)
	repo.addNode(1, models.NodeStatusFaulty, &fresh)
	notifier := &fakeNotifier{}
	scanner := newTestScanner(t, repo, notifier, 300*time.Second)

	summary := scanner.RunCycle(context.Background(), t0)

	assert.Equal(t, 1, summary.TransitionedToHealthy)
	assert.Equal(t, models.NodeStatusHealthy, repo.node(1).status)
	require.Len(t, notifier.pushCalls(), 1)
	assert.Equal(t, EventKindRecovered, notifier.pushCalls()[0].kind)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newFakeRepo()
	repo.addNode(1, models.NodeStatusHealthy, &t0)
	repo.addNode(2, models.NodeStatusHealthy, nil)
	notifier := &fakeNotifier{}
	scanner := newTestScanner(t, repo, notifier, 300*time.Second)

	now := t0.Add(10 * time.Minute)
	first := scanner.RunCycle(context.Background(), now)
	assert.Equal(t, 2, first.TransitionedToFaulty)
	writesAfterFirst := repo.writeCount()
	pushesAfterFirst := len(notifier.pushCalls())

	// Immediately re-running with no intervening change must do nothing.
	second := scanner.RunCycle(context.Background(), now.Add(time.Second))
	assert.Equal(t, 2, second.Evaluated)
	assert.Equal(t, 0, second.TransitionedToFaulty)
	assert.Equal(t, 0, second.Errors)
	assert.Equal(t, writesAfterFirst, repo.writeCount())
	assert.Len(t, notifier.pushCalls(), pushesAfterFirst)
}

func TestRunCycleIsolatesPerNodeFailures(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newFakeRepo()
	repo.addNode(1, models.NodeStatusHealthy, &t0)
	repo.addNode(2, models.NodeStatusHealthy, &t0)
	repo.getErr[1] = errors.New("transient store error")
	notifier := &fakeNotifier{}
	scanner := newTestScanner(t, repo, notifier, 300*time.Second)

	summary := scanner.RunCycle(context.Background(), t0.Add(10*time.Minute))

	assert.Equal(t, 2, summary.Evaluated)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.TransitionedToFaulty)

	// node 2 was still detected and notified
	assert.Equal(t, models.NodeStatusFaulty, repo.node(2).status)
	require.Len(t, notifier.pushCalls(), 1)
	assert.Equal(t, int64(2), notifier.pushCalls()[0].nodeID)
}

func TestRunCycleYieldsToConcurrentForegroundWrite(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newFakeRepo()
	repo.addNode(1, models.NodeStatusHealthy, &t0)
	// a heartbeat lands between the applier's read and its write
	repo.afterGet = func(id int64) { repo.bumpRevision(id) }
	notifier := &fakeNotifier{}
	scanner := newTestScanner(t, repo, notifier, 300*time.Second)

	summary := scanner.RunCycle(context.Background(), t0.Add(10*time.Minute))

	// conflict is an expected signal, not an error, and must not notify
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, 0, summary.TransitionedToFaulty)
	assert.Equal(t, models.NodeStatusHealthy, repo.node(1).status)
	assert.Empty(t, notifier.pushCalls())
	assert.Empty(t, notifier.emailCalls())
}

func TestRunCycleKeepsTransitionWhenNotificationFails(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newFakeRepo()
	repo.addNode(1, models.NodeStatusHealthy, &t0)
	notifier := &fakeNotifier{pushErr: errors.New("fcm unavailable")}
	scanner := newTestScanner(t, repo, notifier, 300*time.Second)

	summary := scanner.RunCycle(context.Background(), t0.Add(10*time.Minute))

	// the applied transition is authoritative even though push was lost
	assert.Equal(t, 1, summary.TransitionedToFaulty)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, models.NodeStatusFaulty, repo.node(1).status)

	// the email channel was still attempted
	require.Len(t, notifier.emailCalls(), 1)
}

func TestRunCycleCountsSnapshotFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("database down")
	notifier := &fakeNotifier{}
	scanner := newTestScanner(t, repo, notifier, 300*time.Second)

	summary := scanner.RunCycle(context.Background(), time.Now())

	assert.Equal(t, 0, summary.Evaluated)
	assert.Equal(t, 1, summary.Errors)
	assert.Empty(t, notifier.pushCalls())
}
