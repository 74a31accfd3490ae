package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// PushAdapter sends multicast push notifications to staff devices through the
// FCM legacy HTTP API.
type PushAdapter struct {
	serverKey string
	endpoint  string
	client    *http.Client
	logger    *zap.Logger
}

// fcmRequest is the FCM legacy multicast payload
type fcmRequest struct {
	RegistrationIDs []string        `json:"registration_ids"`
	Notification    fcmNotification `json:"notification"`
	Data            map[string]any  `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// fcmResponse is the subset of the FCM response we care about
type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// NewPushAdapter creates a push notification adapter
func NewPushAdapter(serverKey, endpoint string, logger *zap.Logger) (*PushAdapter, error) {
	if serverKey == "" {
		return nil, fmt.Errorf("FCM server key is required")
	}

	return &PushAdapter{
		serverKey: serverKey,
		endpoint:  endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Send multicasts one notification to the given device tokens.
func (p *PushAdapter) Send(ctx context.Context, tokens []string, title, body string, data map[string]any) error {
	if len(tokens) == 0 {
		p.logger.Debug("no push tokens registered, skipping push")
		return nil
	}

	payload := fcmRequest{
		RegistrationIDs: tokens,
		Notification:    fcmNotification{Title: title, Body: body},
		Data:            data,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("key=%s", p.serverKey))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("FCM returned status %d", resp.StatusCode)
	}

	var fcmResp fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&fcmResp); err != nil {
		return fmt.Errorf("failed to decode FCM response: %w", err)
	}

	p.logger.Info("push multicast sent",
		zap.Int("tokens", len(tokens)),
		zap.Int("success", fcmResp.Success),
		zap.Int("failure", fcmResp.Failure),
	)

	if fcmResp.Success == 0 && fcmResp.Failure > 0 {
		return fmt.Errorf("FCM rejected all %d tokens", fcmResp.Failure)
	}

	return nil
}
