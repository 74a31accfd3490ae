package monitor

import (
	"time"

	"github.com/polewatch/control-plane/pkg/models"
)

// Evaluate maps a node's last heartbeat to a liveness verdict. Pure and total:
// faulty iff the heartbeat age exceeds maxAge. A node that never reported
// (nil lastHeartbeat) is faulty; unknown nodes are never silently healthy.
func Evaluate(lastHeartbeat *time.Time, now time.Time, maxAge time.Duration) models.NodeStatus {
	if lastHeartbeat == nil {
		return models.NodeStatusFaulty
	}
	if now.Sub(*lastHeartbeat) > maxAge {
		return models.NodeStatusFaulty
	}
	return models.NodeStatusHealthy
}
