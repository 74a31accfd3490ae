package store

import (
	"context"
	"fmt"

	"github.com/polewatch/control-plane/pkg/database"
)

// Migrate creates the schema if it does not exist yet. Node ids are assigned
// by the devices themselves, so the nodes table has no sequence.
func Migrate(ctx context.Context, db *database.Database) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id                BIGINT PRIMARY KEY,
			latitude          DOUBLE PRECISION NOT NULL DEFAULT 0,
			longitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
			status            TEXT NOT NULL DEFAULT 'healthy',
			last_heartbeat    TIMESTAMPTZ,
			status_changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			revision          BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_status ON nodes (status)`,
		`CREATE TABLE IF NOT EXISTS devices (
			id         BIGSERIAL PRIMARY KEY,
			push_token TEXT NOT NULL UNIQUE,
			role       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_role ON devices (role)`,
		`CREATE TABLE IF NOT EXISTS faults (
			id          BIGSERIAL PRIMARY KEY,
			node_id     BIGINT NOT NULL REFERENCES nodes (id),
			description TEXT NOT NULL,
			confidence  DOUBLE PRECISION NOT NULL,
			image_url   TEXT,
			reported_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_faults_node_id ON faults (node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_faults_reported_at ON faults (reported_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
