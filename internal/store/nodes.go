package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/polewatch/control-plane/internal/monitor"
	"github.com/polewatch/control-plane/pkg/database"
	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

// NodeStore provides node persistence over PostgreSQL. It implements
// monitor.NodeRepository.
type NodeStore struct {
	db     *database.Database
	logger *zap.Logger
}

// NewNodeStore creates a node store
func NewNodeStore(db *database.Database, logger *zap.Logger) *NodeStore {
	return &NodeStore{db: db, logger: logger}
}

// ListAllNodes returns a monitor snapshot of every known node.
func (s *NodeStore) ListAllNodes(ctx context.Context) ([]monitor.NodeSnapshot, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT id, last_heartbeat, status FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var snapshots []monitor.NodeSnapshot
	for rows.Next() {
		var snap monitor.NodeSnapshot
		if err := rows.Scan(&snap.ID, &snap.LastHeartbeat, &snap.Status); err != nil {
			return nil, fmt.Errorf("failed to scan node snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate node snapshots: %w", err)
	}

	return snapshots, nil
}

// GetNodeForUpdate reads the node's current status and revision.
func (s *NodeStore) GetNodeForUpdate(ctx context.Context, id int64) (monitor.NodeRecord, error) {
	var rec monitor.NodeRecord
	err := s.db.Pool.QueryRow(ctx,
		`SELECT status, revision FROM nodes WHERE id = $1`, id,
	).Scan(&rec.Status, &rec.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.NodeRecord{}, monitor.ErrNodeNotFound
	}
	if err != nil {
		return monitor.NodeRecord{}, fmt.Errorf("failed to read node %d: %w", id, err)
	}
	return rec, nil
}

// ConditionalUpdateStatus performs the revision-guarded status write. The
// WHERE clause on revision is what makes concurrent scanner and foreground
// writes to the same node safe without a global lock.
func (s *NodeStore) ConditionalUpdateStatus(ctx context.Context, id int64, expectedRevision int64, next models.NodeStatus, now time.Time) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE nodes
		SET status = $1, status_changed_at = $2, revision = revision + 1
		WHERE id = $3 AND revision = $4
	`, next, now, id, expectedRevision)
	if err != nil {
		return fmt.Errorf("failed to update node %d status: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		// Either the node vanished or the revision moved; distinguish so
		// callers can treat a mismatch as an expected concurrency signal.
		var exists bool
		if err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM nodes WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check node %d existence: %w", id, err)
		}
		if !exists {
			return monitor.ErrNodeNotFound
		}
		return monitor.ErrRevisionMismatch
	}

	return nil
}

// ListNodes returns full node rows for the API, most recently heard-from first.
func (s *NodeStore) ListNodes(ctx context.Context) ([]models.Node, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, latitude, longitude, status, last_heartbeat, status_changed_at, revision
		FROM nodes
		ORDER BY last_heartbeat DESC NULLS LAST, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		var n models.Node
		if err := rows.Scan(&n.ID, &n.Latitude, &n.Longitude, &n.Status, &n.LastHeartbeat, &n.StatusChangedAt, &n.Revision); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}

	return nodes, nil
}

// RecordHeartbeat registers a foreground liveness report. Unknown nodes are
// created on first contact; known nodes get a fresh last_heartbeat, an
// optional location update and a revision bump. The bump is deliberate: a
// scan-cycle write racing this call observes the moved revision and yields.
func (s *NodeStore) RecordHeartbeat(ctx context.Context, id int64, latitude, longitude *float64, now time.Time) (models.Node, error) {
	var n models.Node
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO nodes (id, latitude, longitude, status, last_heartbeat, status_changed_at, revision)
		VALUES ($1, COALESCE($2, 0), COALESCE($3, 0), 'healthy', $4, $4, 1)
		ON CONFLICT (id) DO UPDATE SET
			last_heartbeat = EXCLUDED.last_heartbeat,
			latitude = COALESCE($2, nodes.latitude),
			longitude = COALESCE($3, nodes.longitude),
			revision = nodes.revision + 1
		RETURNING id, latitude, longitude, status, last_heartbeat, status_changed_at, revision
	`, id, latitude, longitude, now).Scan(
		&n.ID, &n.Latitude, &n.Longitude, &n.Status, &n.LastHeartbeat, &n.StatusChangedAt, &n.Revision,
	)
	if err != nil {
		return models.Node{}, fmt.Errorf("failed to record heartbeat for node %d: %w", id, err)
	}

	return n, nil
}

// Stats computes fleet-wide health numbers for the dashboard endpoint.
func (s *NodeStore) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := s.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'faulty')
		FROM nodes
	`).Scan(&stats.TotalNodes, &stats.ActiveFaultsCount)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	if stats.TotalNodes > 0 {
		pct := float64(stats.ActiveFaultsCount) / float64(stats.TotalNodes) * 100
		stats.FaultPercentage = float64(int(pct*100+0.5)) / 100
	}

	return stats, nil
}

// SeedSampleNodes inserts a few demo poles when the table is empty.
func (s *NodeStore) SeedSampleNodes(ctx context.Context, now time.Time) error {
	var count int64
	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count nodes: %w", err)
	}
	if count > 0 {
		return nil
	}

	samples := []struct {
		id       int64
		lat, lon float64
	}{
		{1, 12.9716, 77.5946},
		{2, 28.7041, 77.1025},
		{3, 19.0760, 72.8777},
	}
	for _, sample := range samples {
		_, err := s.db.Pool.Exec(ctx, `
			INSERT INTO nodes (id, latitude, longitude, status, last_heartbeat, status_changed_at, revision)
			VALUES ($1, $2, $3, 'healthy', $4, $4, 1)
			ON CONFLICT (id) DO NOTHING
		`, sample.id, sample.lat, sample.lon, now)
		if err != nil {
			return fmt.Errorf("failed to seed node %d: %w", sample.id, err)
		}
	}

	s.logger.Info("seeded sample nodes", zap.Int("count", len(samples)))
	return nil
}
