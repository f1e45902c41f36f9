package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	PostgresURI string
	RedisURI    string
	Port        string
	Environment string // ENV: production, development, etc.

	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS, comma separated

	// Message pipeline tunables.
	SnowflakeNodeID    int64
	RecallWindow       time.Duration
	LoadWindowDays     int
	LoadLimit          int
	DefaultPageSize    int64
	PrivateDestination string
	GroupDestination   string
	ConsumerGroup      string

	// Transactional broker check-back policy.
	TxCheckInterval    time.Duration
	TxCheckMaxAttempts int

	// Async push worker pool.
	WorkerCount     int
	WorkerQueueSize int

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
}

func Load() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", "postgres://localhost:5432/meshtalk?sslmode=disable"),
		RedisURI:    getEnv("REDIS_URI", "redis://localhost:6379/0"),
		Port:        getEnv("PORT", "8080"),
		Environment: strings.ToLower(strings.TrimSpace(getEnv("ENV", "development"))),

		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		SnowflakeNodeID:    getEnvInt64("SNOWFLAKE_NODE_ID", 1),
		RecallWindow:       getEnvDuration("RECALL_WINDOW", 5*time.Minute),
		LoadWindowDays:     getEnvInt("LOAD_WINDOW_DAYS", 30),
		LoadLimit:          getEnvInt("LOAD_LIMIT", 100),
		DefaultPageSize:    getEnvInt64("DEFAULT_PAGE_SIZE", 10),
		PrivateDestination: getEnv("PRIVATE_MESSAGE_TOPIC", "im.message.private"),
		GroupDestination:   getEnv("GROUP_MESSAGE_TOPIC", "im.message.group"),
		ConsumerGroup:      getEnv("CONSUMER_GROUP", "message-platform"),

		TxCheckInterval:    getEnvDuration("TX_CHECK_INTERVAL", 30*time.Second),
		TxCheckMaxAttempts: getEnvInt("TX_CHECK_MAX_ATTEMPTS", 15),

		WorkerCount:     getEnvInt("PUSH_WORKER_COUNT", 8),
		WorkerQueueSize: getEnvInt("PUSH_WORKER_QUEUE", 256),

		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
	}
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
