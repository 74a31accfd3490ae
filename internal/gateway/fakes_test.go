package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polewatch/control-plane/internal/config"
	"github.com/polewatch/control-plane/internal/monitor"
	"github.com/polewatch/control-plane/pkg/events"
	"github.com/polewatch/control-plane/pkg/models"
)

// fakeStore backs the gateway in tests. It implements NodeDirectory,
// DeviceRegistry, FaultLog, and monitor.NodeRepository so the same in-memory
// state serves both the HTTP handlers and the transition applier.
type fakeStore struct {
	mu      sync.Mutex
	nodes   map[int64]*models.Node
	devices map[string]models.Device
	faults  []models.Fault

	nextDeviceID int64
	nextFaultID  int64

	// afterGet runs after GetNodeForUpdate returns, before the caller can
	// issue its conditional write. Used to simulate a heartbeat racing a
	// foreground transition.
	afterGet func(id int64)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:   make(map[int64]*models.Node),
		devices: make(map[string]models.Device),
	}
}

func (f *fakeStore) addNode(id int64, status models.NodeStatus, lastHeartbeat *time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[id] = &models.Node{
		ID:            id,
		Status:        status,
		LastHeartbeat: lastHeartbeat,
		Revision:      1,
	}
}

func (f *fakeStore) node(id int64) models.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.nodes[id]
}

// NodeDirectory

func (f *fakeStore) ListNodes(ctx context.Context) ([]models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Node
	for _, n := range f.nodes {
		out = append(out, *n)
	}
	return out, nil
}

func (f *fakeStore) RecordHeartbeat(ctx context.Context, id int64, latitude, longitude *float64, now time.Time) (models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[id]
	if !ok {
		n = &models.Node{
			ID:              id,
			Status:          models.NodeStatusHealthy,
			StatusChangedAt: now,
		}
		f.nodes[id] = n
	}

	hb := now
	n.LastHeartbeat = &hb
	if latitude != nil {
		n.Latitude = *latitude
	}
	if longitude != nil {
		n.Longitude = *longitude
	}
	n.Revision++

	return *n, nil
}

func (f *fakeStore) Stats(ctx context.Context) (models.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := models.Stats{TotalNodes: int64(len(f.nodes))}
	for _, n := range f.nodes {
		if n.Status == models.NodeStatusFaulty {
			stats.ActiveFaultsCount++
		}
	}
	if stats.TotalNodes > 0 {
		pct := float64(stats.ActiveFaultsCount) / float64(stats.TotalNodes) * 100
		stats.FaultPercentage = math.Round(pct*100) / 100
	}
	return stats, nil
}

// DeviceRegistry

func (f *fakeStore) RegisterDevice(ctx context.Context, pushToken string, role models.DeviceRole) (models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.devices[pushToken]; ok {
		d.Role = role
		f.devices[pushToken] = d
		return d, nil
	}

	f.nextDeviceID++
	d := models.Device{
		ID:        f.nextDeviceID,
		PushToken: pushToken,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	f.devices[pushToken] = d
	return d, nil
}

// FaultLog

func (f *fakeStore) CreateFault(ctx context.Context, nodeID int64, description string, confidence float64, imageURL string) (models.Fault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextFaultID++
	fault := models.Fault{
		ID:          f.nextFaultID,
		NodeID:      nodeID,
		Description: description,
		Confidence:  confidence,
		ImageURL:    imageURL,
		ReportedAt:  time.Now().UTC(),
	}
	f.faults = append(f.faults, fault)
	return fault, nil
}

func (f *fakeStore) ListFaults(ctx context.Context) ([]models.Fault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Fault(nil), f.faults...), nil
}

// monitor.NodeRepository

func (f *fakeStore) ListAllNodes(ctx context.Context) ([]monitor.NodeSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []monitor.NodeSnapshot
	for _, n := range f.nodes {
		out = append(out, monitor.NodeSnapshot{ID: n.ID, LastHeartbeat: n.LastHeartbeat, Status: n.Status})
	}
	return out, nil
}

func (f *fakeStore) GetNodeForUpdate(ctx context.Context, id int64) (monitor.NodeRecord, error) {
	f.mu.Lock()
	n, ok := f.nodes[id]
	if !ok {
		f.mu.Unlock()
		return monitor.NodeRecord{}, monitor.ErrNodeNotFound
	}
	rec := monitor.NodeRecord{Status: n.Status, Revision: n.Revision}
	f.mu.Unlock()

	if f.afterGet != nil {
		f.afterGet(id)
	}
	return rec, nil
}

func (f *fakeStore) ConditionalUpdateStatus(ctx context.Context, id int64, expectedRevision int64, next models.NodeStatus, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return monitor.ErrNodeNotFound
	}
	if n.Revision != expectedRevision {
		return monitor.ErrRevisionMismatch
	}
	n.Status = next
	n.StatusChangedAt = now
	n.Revision++
	return nil
}

// test wiring

func testConfig(apiKey string, uploadDir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			CORSOrigins: []string{"*"},
		},
		Security: config.SecurityConfig{APIKey: apiKey},
		Uploads: config.UploadConfig{
			Dir:          uploadDir,
			MaxSizeBytes: 10 << 20,
		},
	}
}

func newTestGateway(t *testing.T, store *fakeStore, cfg *config.Config) (*Gateway, *events.Bus) {
	t.Helper()

	logger := zap.NewNop()
	bus := events.NewBus(logger)
	applier := monitor.NewTransitionApplier(store, logger)

	g := NewGateway(store, store, store, applier, nil, nil, bus, logger, cfg)
	return g, bus
}

func doJSON(t *testing.T, g *Gateway, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

var _ http.Handler = (*Gateway)(nil)
