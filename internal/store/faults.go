package store

import (
	"context"
	"fmt"

	"github.com/polewatch/control-plane/pkg/database"
	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

// FaultStore persists reported incidents.
type FaultStore struct {
	db     *database.Database
	logger *zap.Logger
}

// NewFaultStore creates a fault store
func NewFaultStore(db *database.Database, logger *zap.Logger) *FaultStore {
	return &FaultStore{db: db, logger: logger}
}

// CreateFault records a new incident against a node.
func (s *FaultStore) CreateFault(ctx context.Context, nodeID int64, description string, confidence float64, imageURL string) (models.Fault, error) {
	var f models.Fault
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO faults (node_id, description, confidence, image_url, reported_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, node_id, description, confidence, COALESCE(image_url, ''), reported_at
	`, nodeID, description, confidence, nullable(imageURL)).Scan(
		&f.ID, &f.NodeID, &f.Description, &f.Confidence, &f.ImageURL, &f.ReportedAt,
	)
	if err != nil {
		return models.Fault{}, fmt.Errorf("failed to create fault: %w", err)
	}

	return f, nil
}

// ListFaults returns all reported faults, newest first.
func (s *FaultStore) ListFaults(ctx context.Context) ([]models.Fault, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, node_id, description, confidence, COALESCE(image_url, ''), reported_at
		FROM faults
		ORDER BY reported_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list faults: %w", err)
	}
	defer rows.Close()

	var faults []models.Fault
	for rows.Next() {
		var f models.Fault
		if err := rows.Scan(&f.ID, &f.NodeID, &f.Description, &f.Confidence, &f.ImageURL, &f.ReportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fault: %w", err)
		}
		faults = append(faults, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate faults: %w", err)
	}

	return faults, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
