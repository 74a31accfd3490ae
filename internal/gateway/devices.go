package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/polewatch/control-plane/pkg/events"
	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

type registerDeviceRequest struct {
	PushToken string `json:"push_token"`
	Role      string `json:"role"`
}

func (g *Gateway) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.PushToken == "" {
		g.writeError(w, http.StatusBadRequest, "push_token is required")
		return
	}

	role := models.DeviceRole(req.Role)
	if role != models.DeviceRoleCitizen && role != models.DeviceRoleStaff {
		g.writeError(w, http.StatusBadRequest, "role must be 'citizen' or 'staff'")
		return
	}

	device, err := g.devices.RegisterDevice(r.Context(), req.PushToken, role)
	if err != nil {
		g.logger.Error("failed to register device", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}

	// Lets the notification service drop its cached staff token list.
	g.bus.Publish(r.Context(), events.NewEvent(events.EventDeviceRegistered, 0, map[string]interface{}{
		"device_id": device.ID,
		"role":      string(device.Role),
	}))

	g.writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "Device registered",
		Data:    device,
	})
}
