package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event being published
type EventType string

// Foreground workflow events. Monitor-driven transitions do not go through
// the bus; the scanner calls the notification gateway directly so delivery
// failures surface in its scan summary.
const (
	EventFaultReported    EventType = "fault.reported"
	EventDeviceRegistered EventType = "device.registered"
)

// Event represents a single event in the system
type Event struct {
	// ID is a unique identifier for this event (for de-duplication)
	ID string

	// Type is the event type
	Type EventType

	// Timestamp is when the event occurred
	Timestamp time.Time

	// NodeID is the node this event concerns, zero for system events
	NodeID int64

	// Payload contains event-specific data
	Payload map[string]interface{}
}

// NewEvent creates a new event with the given type and payload
func NewEvent(eventType EventType, nodeID int64, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		Payload:   payload,
	}
}
