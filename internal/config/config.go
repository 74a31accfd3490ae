package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the control plane
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Monitor   MonitorConfig
	Security  SecurityConfig
	Uploads   UploadConfig
	Seeding   SeedingConfig
	LogLevel  string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// MonitorConfig holds heartbeat monitor configuration.
// Both durations must be positive; the monitor refuses to start otherwise.
type MonitorConfig struct {
	HeartbeatMaxAge time.Duration
	CheckInterval   time.Duration
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	APIKey string

	// RateLimitPerMinute caps requests per client IP per minute.
	// Zero disables throttling.
	RateLimitPerMinute int64
}

// UploadConfig holds image upload configuration
type UploadConfig struct {
	Dir          string
	MaxSizeBytes int64
}

// SeedingConfig controls optional sample data creation at startup
type SeedingConfig struct {
	SampleNodes bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", "120s"),
			CORSOrigins:  getEnvAsSlice("CORS_ALLOW_ORIGINS", []string{"http://localhost:8000"}),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "polewatch"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "polewatch"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Monitor: MonitorConfig{
			HeartbeatMaxAge: getEnvAsDuration("HEARTBEAT_MAX_AGE", "300s"),
			CheckInterval:   getEnvAsDuration("HEARTBEAT_CHECK_INTERVAL", "60s"),
		},
		Security: SecurityConfig{
			APIKey:             getEnv("API_KEY", ""),
			RateLimitPerMinute: int64(getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120)),
		},
		Uploads: UploadConfig{
			Dir:          getEnv("UPLOAD_DIR", "uploads"),
			MaxSizeBytes: int64(getEnvAsInt("UPLOAD_MAX_SIZE_BYTES", 10<<20)),
		},
		Seeding: SeedingConfig{
			SampleNodes: getEnvAsBool("SEED_SAMPLE_NODES", false),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Monitor.HeartbeatMaxAge <= 0 {
		return nil, fmt.Errorf("HEARTBEAT_MAX_AGE must be a positive duration, got %s", cfg.Monitor.HeartbeatMaxAge)
	}

	if cfg.Monitor.CheckInterval <= 0 {
		return nil, fmt.Errorf("HEARTBEAT_CHECK_INTERVAL must be a positive duration, got %s", cfg.Monitor.CheckInterval)
	}

	if cfg.Uploads.MaxSizeBytes <= 0 {
		return nil, fmt.Errorf("UPLOAD_MAX_SIZE_BYTES must be positive")
	}

	if cfg.Security.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}

	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		// Bare numbers are read as seconds so deployments migrating from the
		// old *_SECONDS variables keep working.
		if secs, convErr := strconv.Atoi(valueStr); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		duration, _ := time.ParseDuration(defaultValue)
		return duration
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
