package notifications

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the notification service
type Config struct {
	// Push configuration (FCM legacy HTTP API)
	PushEnabled   bool
	FCMServerKey  string
	FCMEndpoint   string

	// Email configuration (using Resend)
	EmailEnabled bool
	EmailFrom    string
	EmailTo      []string
	ResendAPIKey string

	// General settings
	Enabled         bool
	DeliveryTimeout time.Duration
	TokenCacheTTL   time.Duration
	DedupWindow     time.Duration
}

// LoadConfig loads the notification configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		PushEnabled:  getEnvBool("NOTIFICATIONS_PUSH_ENABLED", false),
		FCMServerKey: os.Getenv("NOTIFICATIONS_FCM_SERVER_KEY"),
		FCMEndpoint:  getEnv("NOTIFICATIONS_FCM_ENDPOINT", "https://fcm.googleapis.com/fcm/send"),

		EmailEnabled: getEnvBool("NOTIFICATIONS_EMAIL_ENABLED", false),
		EmailFrom:    getEnv("NOTIFICATIONS_EMAIL_FROM", "alerts@polewatch.io"),
		EmailTo:      getEnvStringSlice("NOTIFICATIONS_EMAIL_TO", []string{"ops@polewatch.io"}),
		ResendAPIKey: os.Getenv("NOTIFICATIONS_RESEND_API_KEY"),

		Enabled:         getEnvBool("NOTIFICATIONS_ENABLED", true),
		DeliveryTimeout: getEnvDuration("NOTIFICATIONS_DELIVERY_TIMEOUT", 30*time.Second),
		TokenCacheTTL:   getEnvDuration("NOTIFICATIONS_TOKEN_CACHE_TTL", 1*time.Minute),
		DedupWindow:     getEnvDuration("NOTIFICATIONS_DEDUP_WINDOW", 24*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.PushEnabled {
		if c.FCMServerKey == "" {
			return fmt.Errorf("push enabled but FCM server key not provided")
		}
		if c.FCMEndpoint == "" {
			return fmt.Errorf("push enabled but FCM endpoint not provided")
		}
	}

	if c.EmailEnabled {
		if c.ResendAPIKey == "" {
			return fmt.Errorf("email enabled but Resend API key not provided")
		}
		if c.EmailFrom == "" {
			return fmt.Errorf("email enabled but 'from' address not provided")
		}
		if len(c.EmailTo) == 0 {
			return fmt.Errorf("email enabled but no recipients specified")
		}
	}

	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive")
	}

	return nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return b
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return d
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
