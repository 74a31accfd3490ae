package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/polewatch/control-plane/internal/monitor"
	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

func (g *Gateway) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := g.nodes.ListNodes(r.Context())
	if err != nil {
		g.logger.Error("failed to list nodes", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}

	if nodes == nil {
		nodes = []models.Node{}
	}

	g.writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "Nodes fetched",
		Data:    nodes,
	})
}

type updateNodeRequest struct {
	NodeID    int64    `json:"node_id"`
	Status    string   `json:"status,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// handleUpdateNode is the foreground heartbeat path. It refreshes the node's
// last_heartbeat (creating unknown nodes on first contact) and, when the
// device self-reports a status that differs from the stored one, routes the
// change through the same conditional-write applier the scanner uses.
func (g *Gateway) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var req updateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.NodeID <= 0 {
		g.writeError(w, http.StatusBadRequest, "node_id must be positive")
		return
	}

	reported := models.NodeStatus(req.Status)
	if req.Status != "" && reported != models.NodeStatusHealthy && reported != models.NodeStatusFaulty {
		g.writeError(w, http.StatusBadRequest, "status must be 'healthy' or 'faulty'")
		return
	}

	if (req.Latitude == nil) != (req.Longitude == nil) {
		g.writeError(w, http.StatusBadRequest, "latitude and longitude must be provided together")
		return
	}

	now := g.now()
	node, err := g.nodes.RecordHeartbeat(r.Context(), req.NodeID, req.Latitude, req.Longitude, now)
	if err != nil {
		g.logger.Error("failed to record heartbeat",
			zap.Int64("node_id", req.NodeID),
			zap.Error(err),
		)
		g.writeError(w, http.StatusInternalServerError, "failed to update node")
		return
	}

	if req.Status != "" && reported != node.Status {
		outcome, err := g.applier.TryApply(r.Context(), req.NodeID, node.Status, reported, now)
		if err != nil {
			g.logger.Error("failed to apply reported status",
				zap.Int64("node_id", req.NodeID),
				zap.String("status", req.Status),
				zap.Error(err),
			)
			g.writeError(w, http.StatusInternalServerError, "failed to update node status")
			return
		}

		if outcome == monitor.OutcomeApplied {
			node.Status = reported
			node.StatusChangedAt = now
			node.Revision++
		}
		// Conflict means a concurrent writer got there first; the stored
		// state is fresher than this request, so return it as-is.
	}

	g.logger.Info("node updated",
		zap.Int64("node_id", node.ID),
		zap.String("status", string(node.Status)),
	)

	g.writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "Node updated",
		Data:    node,
	})
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := g.nodes.Stats(r.Context())
	if err != nil {
		g.logger.Error("failed to compute stats", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	g.writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "Stats computed",
		Data:    stats,
	})
}
