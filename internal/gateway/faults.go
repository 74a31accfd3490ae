package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/polewatch/control-plane/internal/monitor"
	"github.com/polewatch/control-plane/pkg/events"
	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

// forceFaultyAttempts bounds the conditional-write retries when a reported
// fault races concurrent heartbeats.
const forceFaultyAttempts = 3

type reportFaultRequest struct {
	NodeID      int64   `json:"node_id"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// handleReportFault records an incident and forces the node faulty through
// the conditional-write applier. Incident-driven fault state belongs to this
// workflow; the heartbeat monitor only owns recency-driven transitions.
func (g *Gateway) handleReportFault(w http.ResponseWriter, r *http.Request) {
	var req reportFaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.NodeID <= 0 {
		g.writeError(w, http.StatusBadRequest, "node_id must be positive")
		return
	}
	if req.Description == "" {
		g.writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if req.Confidence < 0 || req.Confidence > 100 {
		g.writeError(w, http.StatusBadRequest, "confidence must be between 0 and 100")
		return
	}

	now := g.now()

	// Forcing faulty also validates node existence. Unlike the scanner there
	// is no next cycle to pick an incident back up, so a conflict (a
	// heartbeat bumping the revision between the applier's read and its
	// conditional write) is retried here instead of being dropped.
	outcome := monitor.OutcomeConflict
	for attempt := 0; attempt < forceFaultyAttempts && outcome == monitor.OutcomeConflict; attempt++ {
		var err error
		outcome, err = g.applier.TryApply(r.Context(), req.NodeID, models.NodeStatusHealthy, models.NodeStatusFaulty, now)
		if err != nil {
			if errors.Is(err, monitor.ErrNodeNotFound) {
				g.writeError(w, http.StatusNotFound, "Node not found")
				return
			}
			g.logger.Error("failed to mark node faulty",
				zap.Int64("node_id", req.NodeID),
				zap.Error(err),
			)
			g.writeError(w, http.StatusInternalServerError, "failed to report fault")
			return
		}
	}
	if outcome == monitor.OutcomeConflict {
		g.logger.Warn("giving up forcing node faulty after repeated conflicts",
			zap.Int64("node_id", req.NodeID),
			zap.Int("attempts", forceFaultyAttempts),
		)
		g.writeError(w, http.StatusConflict, "node is being updated concurrently, retry")
		return
	}

	fault, err := g.faults.CreateFault(r.Context(), req.NodeID, req.Description, req.Confidence, req.ImageURL)
	if err != nil {
		g.logger.Error("failed to create fault",
			zap.Int64("node_id", req.NodeID),
			zap.Error(err),
		)
		g.writeError(w, http.StatusInternalServerError, "failed to report fault")
		return
	}

	// Staff notification fans out through the event bus; delivery is
	// best-effort and never blocks the response.
	g.bus.Publish(r.Context(), events.NewEvent(events.EventFaultReported, req.NodeID, map[string]interface{}{
		"fault_id":    fault.ID,
		"description": fault.Description,
		"confidence":  fault.Confidence,
		"image_url":   fault.ImageURL,
	}))

	g.writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "Fault reported",
		Data:    fault,
	})
}

func (g *Gateway) handleListFaults(w http.ResponseWriter, r *http.Request) {
	faults, err := g.faults.ListFaults(r.Context())
	if err != nil {
		g.logger.Error("failed to list faults", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to list faults")
		return
	}

	if faults == nil {
		faults = []models.Fault{}
	}

	g.writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "Faults fetched",
		Data:    faults,
	})
}
