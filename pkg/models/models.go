package models

import "time"

// NodeStatus indicates the liveness of a monitored pole.
type NodeStatus string

const (
	NodeStatusHealthy NodeStatus = "healthy"
	NodeStatusFaulty  NodeStatus = "faulty"
)

// Node describes a monitored field pole.
type Node struct {
	ID              int64      `json:"id"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	Status          NodeStatus `json:"status"`
	LastHeartbeat   *time.Time `json:"last_heartbeat"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
	Revision        int64      `json:"revision"`
}

// DeviceRole distinguishes staff devices (which receive alerts) from citizen devices.
type DeviceRole string

const (
	DeviceRoleCitizen DeviceRole = "citizen"
	DeviceRoleStaff   DeviceRole = "staff"
)

// Device is a registered mobile app installation identified by its push token.
type Device struct {
	ID        int64      `json:"id"`
	PushToken string     `json:"push_token"`
	Role      DeviceRole `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

// Fault is a reported incident on a node. Confidence is a percentage in [0, 100].
type Fault struct {
	ID          int64     `json:"id"`
	NodeID      int64     `json:"node_id"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	ImageURL    string    `json:"image_url,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
}

// Stats summarizes fleet health for dashboards.
type Stats struct {
	TotalNodes        int64   `json:"total_nodes"`
	ActiveFaultsCount int64   `json:"active_faults_count"`
	FaultPercentage   float64 `json:"fault_percentage"`
}
