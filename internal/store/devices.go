package store

import (
	"context"
	"fmt"

	"github.com/polewatch/control-plane/pkg/database"
	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

// DeviceStore persists registered mobile devices and their push tokens.
type DeviceStore struct {
	db     *database.Database
	logger *zap.Logger
}

// NewDeviceStore creates a device store
func NewDeviceStore(db *database.Database, logger *zap.Logger) *DeviceStore {
	return &DeviceStore{db: db, logger: logger}
}

// RegisterDevice upserts a device keyed by its push token. Re-registration
// with a different role updates the role in place.
func (s *DeviceStore) RegisterDevice(ctx context.Context, pushToken string, role models.DeviceRole) (models.Device, error) {
	var d models.Device
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO devices (push_token, role, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (push_token) DO UPDATE SET role = EXCLUDED.role
		RETURNING id, push_token, role, created_at
	`, pushToken, role).Scan(&d.ID, &d.PushToken, &d.Role, &d.CreatedAt)
	if err != nil {
		return models.Device{}, fmt.Errorf("failed to register device: %w", err)
	}

	return d, nil
}

// ListStaffPushTokens returns the push tokens of all staff devices.
func (s *DeviceStore) ListStaffPushTokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT push_token FROM devices WHERE role = 'staff'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan staff token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staff tokens: %w", err)
	}

	return tokens, nil
}
