package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/polewatch/control-plane/internal/monitor"
	"github.com/polewatch/control-plane/pkg/cache"
	"github.com/polewatch/control-plane/pkg/events"
	"go.uber.org/zap"
)

// staffTokenCacheKey holds the cached newline-joined staff push tokens.
const staffTokenCacheKey = "notifications:staff_tokens"

// StaffTokenSource yields the push tokens of registered staff devices.
// Implemented by store.DeviceStore.
type StaffTokenSource interface {
	ListStaffPushTokens(ctx context.Context) ([]string, error)
}

// Service delivers staff notifications. The heartbeat monitor calls the
// NotifyStaffPush/NotifyEmail methods directly (so delivery errors show up in
// its scan summary); the foreground fault-report workflow reaches it through
// the event bus. Delivery is best-effort and at-most-once: a failed send is
// logged and counted, never retried.
type Service struct {
	config  *Config
	devices StaffTokenSource
	cache   *cache.Cache
	logger  *zap.Logger
	bus     *events.Bus

	push  *PushAdapter
	email *EmailAdapter

	metrics *Metrics
}

// NewService creates a new notification service
func NewService(config *Config, devices StaffTokenSource, cache *cache.Cache, logger *zap.Logger, bus *events.Bus) (*Service, error) {
	s := &Service{
		config:  config,
		devices: devices,
		cache:   cache,
		logger:  logger,
		bus:     bus,
		metrics: NewMetrics(),
	}

	if !config.Enabled {
		logger.Info("notification service is disabled")
		return s, nil
	}

	if config.PushEnabled {
		push, err := NewPushAdapter(config.FCMServerKey, config.FCMEndpoint, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize push adapter: %w", err)
		}
		s.push = push
		logger.Info("push notifications enabled")
	}

	if config.EmailEnabled {
		email, err := NewEmailAdapter(config.EmailFrom, config.EmailTo, config.ResendAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email adapter: %w", err)
		}
		s.email = email
		logger.Info("email notifications enabled",
			zap.String("from", config.EmailFrom),
			zap.Strings("to", config.EmailTo),
		)
	}

	return s, nil
}

// Start subscribes the service to foreground workflow events.
func (s *Service) Start() {
	if !s.config.Enabled {
		return
	}

	s.bus.Subscribe(events.EventFaultReported, s.handleFaultReported)
	s.bus.Subscribe(events.EventDeviceRegistered, s.handleDeviceRegistered)
	s.logger.Info("notification service started")
}

// handleDeviceRegistered drops the cached staff token list so a freshly
// registered device is picked up by the next delivery instead of waiting out
// the cache TTL.
func (s *Service) handleDeviceRegistered(ctx context.Context, event events.Event) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, staffTokenCacheKey); err != nil {
		s.logger.Debug("failed to invalidate staff token cache", zap.Error(err))
	}
	return nil
}

// NotifyStaffPush pushes a liveness transition alert to all staff devices.
// Implements monitor.NotificationGateway.
func (s *Service) NotifyStaffPush(ctx context.Context, nodeID int64, kind monitor.EventKind) error {
	if s.push == nil {
		s.logger.Debug("push channel disabled, dropping notification",
			zap.Int64("node_id", nodeID),
			zap.String("kind", string(kind)),
		)
		return nil
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	defer cancel()

	tokens, err := s.staffTokens(ctx)
	if err != nil {
		s.metrics.RecordDelivery("push", string(kind), "failed", time.Since(started))
		return fmt.Errorf("failed to load staff tokens: %w", err)
	}

	title, body := formatTransitionAlert(nodeID, kind)
	err = s.push.Send(ctx, tokens, title, body, map[string]any{
		"node_id": nodeID,
		"kind":    string(kind),
	})
	if err != nil {
		s.metrics.RecordDelivery("push", string(kind), "failed", time.Since(started))
		return err
	}

	s.metrics.RecordDelivery("push", string(kind), "success", time.Since(started))
	return nil
}

// NotifyEmail emails a liveness transition alert to the configured recipients.
// Implements monitor.NotificationGateway.
func (s *Service) NotifyEmail(ctx context.Context, nodeID int64, kind monitor.EventKind) error {
	if s.email == nil {
		s.logger.Debug("email channel disabled, dropping notification",
			zap.Int64("node_id", nodeID),
			zap.String("kind", string(kind)),
		)
		return nil
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	defer cancel()

	title, body := formatTransitionAlert(nodeID, kind)
	html := renderAlertHTML(alertData{
		Title: title,
		Body:  body,
		Color: alertColor(kind),
		Rows: []alertRow{
			{Key: "Node", Value: fmt.Sprintf("%d", nodeID)},
			{Key: "Event", Value: string(kind)},
			{Key: "Detected", Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})

	if err := s.email.Send(ctx, title, html, body); err != nil {
		s.metrics.RecordDelivery("email", string(kind), "failed", time.Since(started))
		return err
	}

	s.metrics.RecordDelivery("email", string(kind), "success", time.Since(started))
	return nil
}

// handleFaultReported fans a reported incident out to staff push and email.
func (s *Service) handleFaultReported(ctx context.Context, event events.Event) error {
	if s.isDuplicate(ctx, event.ID) {
		s.logger.Debug("duplicate event, skipping", zap.String("event_id", event.ID))
		return nil
	}

	description, _ := event.Payload["description"].(string)
	confidence, _ := event.Payload["confidence"].(float64)

	title := "Fault Reported"
	body := fmt.Sprintf("Node %d reported faulty with confidence %.0f%%", event.NodeID, confidence)

	ctx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	defer cancel()

	if s.push != nil {
		started := time.Now()
		tokens, err := s.staffTokens(ctx)
		if err == nil {
			err = s.push.Send(ctx, tokens, title, body, map[string]any{
				"node_id": event.NodeID,
				"kind":    string(events.EventFaultReported),
			})
		}
		if err != nil {
			s.metrics.RecordDelivery("push", string(events.EventFaultReported), "failed", time.Since(started))
			s.logger.Error("fault report push lost",
				zap.Int64("node_id", event.NodeID),
				zap.Error(err),
			)
		} else {
			s.metrics.RecordDelivery("push", string(events.EventFaultReported), "success", time.Since(started))
		}
	}

	if s.email != nil {
		started := time.Now()
		html := renderAlertHTML(alertData{
			Title: title,
			Body:  body,
			Color: "#c0392b",
			Rows: []alertRow{
				{Key: "Node", Value: fmt.Sprintf("%d", event.NodeID)},
				{Key: "Description", Value: description},
				{Key: "Confidence", Value: fmt.Sprintf("%.0f%%", confidence)},
				{Key: "Reported", Value: event.Timestamp.Format(time.RFC3339)},
			},
		})
		if err := s.email.Send(ctx, title, html, body); err != nil {
			s.metrics.RecordDelivery("email", string(events.EventFaultReported), "failed", time.Since(started))
			s.logger.Error("fault report email lost",
				zap.Int64("node_id", event.NodeID),
				zap.Error(err),
			)
		} else {
			s.metrics.RecordDelivery("email", string(events.EventFaultReported), "success", time.Since(started))
		}
	}

	s.markProcessed(ctx, event.ID)
	return nil
}

// staffTokens returns staff push tokens, cached briefly so a burst of
// transitions does not hammer the devices table.
func (s *Service) staffTokens(ctx context.Context) ([]string, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, staffTokenCacheKey); err == nil && cached != "" {
			return splitTokens(cached), nil
		}
	}

	tokens, err := s.devices.ListStaffPushTokens(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && len(tokens) > 0 {
		if err := s.cache.Set(ctx, staffTokenCacheKey, joinTokens(tokens), s.config.TokenCacheTTL); err != nil {
			s.logger.Debug("failed to cache staff tokens", zap.Error(err))
		}
	}

	return tokens, nil
}

// isDuplicate checks if an event was already processed
func (s *Service) isDuplicate(ctx context.Context, eventID string) bool {
	if s.cache == nil {
		return false
	}
	exists, err := s.cache.Exists(ctx, "notifications:processed:"+eventID)
	if err != nil {
		s.logger.Error("failed to check duplicate", zap.Error(err))
		return false
	}
	return exists
}

// markProcessed marks an event as processed
func (s *Service) markProcessed(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, "notifications:processed:"+eventID, "1", s.config.DedupWindow); err != nil {
		s.logger.Error("failed to mark event as processed", zap.Error(err))
	}
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, "\n")
}

func splitTokens(joined string) []string {
	return strings.Split(joined, "\n")
}

func formatTransitionAlert(nodeID int64, kind monitor.EventKind) (title, body string) {
	switch kind {
	case monitor.EventKindFaultDetected:
		return "Node Offline",
			fmt.Sprintf("Node %d stopped sending heartbeats and was marked faulty", nodeID)
	case monitor.EventKindRecovered:
		return "Node Recovered",
			fmt.Sprintf("Node %d resumed sending heartbeats and was marked healthy", nodeID)
	default:
		return "Node Alert", fmt.Sprintf("Node %d: %s", nodeID, kind)
	}
}

func alertColor(kind monitor.EventKind) string {
	if kind == monitor.EventKindRecovered {
		return "#27ae60"
	}
	return "#c0392b"
}
