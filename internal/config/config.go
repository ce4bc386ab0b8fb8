package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
	Tracing      TracingConfig
}

type AppConfig struct {
	Port                    string
	Environment             string
	LogFilePath             string
	NotificationLogFilePath string
	CorsAllowedOrigins      string
	EventBus                string // "nats" or "memory"
	NatsURL                 string
	RedisURL                string
}

type DatabaseConfig struct {
	Driver     string // "postgres" or "memory"
	Connection string
}

type AuthConfig struct {
	JWTSecret string
}

type NotificationConfig struct {
	DefaultPageSize  int
	MaxPageSize      int
	UnreadCountTTL   time.Duration
	ClientSendBuffer int
}

type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:                    getEnv("APP_PORT", "3000"),
			Environment:             getEnv("GO_ENV", "development"),
			LogFilePath:             getEnv("LOG_FILE_PATH", "logs/app.log"),
			NotificationLogFilePath: getEnv("NOTIFICATION_LOG_FILE_PATH", "logs/notification.log"),
			CorsAllowedOrigins:      getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			EventBus:                strings.ToLower(getEnv("EVENT_BUS", "memory")),
			NatsURL:                 getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:                getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Notification: NotificationConfig{
			DefaultPageSize:  getEnvAsInt("NOTIFICATION_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:      getEnvAsInt("NOTIFICATION_MAX_PAGE_SIZE", 100),
			UnreadCountTTL:   getEnvAsDuration("UNREAD_COUNT_CACHE_TTL", 10*time.Second),
			ClientSendBuffer: getEnvAsInt("WS_CLIENT_SEND_BUFFER", 256),
		},
		RateLimit: RateLimitConfig{
			Max:    getEnvAsInt("RATE_LIMIT_MAX", 300),
			Window: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("invalid duration for %s; using default %s", key, fallback)
	}
	return fallback
}
