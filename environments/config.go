package environments

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Email      EmailConfig
	Worker     WorkerConfig
	RateLimits RateLimitConfig
	Alert      AlertConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type EmailConfig struct {
	BaseURL     string
	APIKey      string
	FromAddress string
	Timeout     time.Duration
}

type WorkerConfig struct {
	BatchSize  int
	Schedule   string
	LockKey    string
	LockTTL    time.Duration
	Timezone   string
	RunOnStart bool
}

// Location resolves the configured timezone used for "today" and local midnight.
func (w WorkerConfig) Location() *time.Location {
	if w.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// RateLimitConfig holds the defaults applied to tenants without their own settings row.
type RateLimitConfig struct {
	MaxActiveCollections    int
	MaxDailyMessages        int
	MinHoursBetweenMessages float64
}

type AlertConfig struct {
	WebhookURL     string
	IterationCount int
}

type AuthConfig struct {
	OpsAPIKey string
}

func Load() *Config {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Driver:   GetEnv("DB_DRIVER", "mysql"),
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "collections"),
			Password: GetEnv("DB_PASSWORD", "collections123"),
			DBName:   GetEnv("DB_NAME", "collections"),
			SSLMode:  GetEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			BaseURL:     GetEnv("EMAIL_API_URL", "https://api.resend.com"),
			APIKey:      GetEnv("EMAIL_API_KEY", ""),
			FromAddress: GetEnv("EMAIL_FROM", "Collections <collections@example.com>"),
			Timeout:     time.Duration(GetEnvAsInt("EMAIL_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Worker: WorkerConfig{
			BatchSize:  GetEnvAsInt("WORKER_BATCH_SIZE", 50),
			Schedule:   GetEnv("WORKER_SCHEDULE", "*/5 * * * *"),
			LockKey:    GetEnv("WORKER_LOCK_KEY", "collections:worker:lock"),
			LockTTL:    GetEnvAsDuration("WORKER_LOCK_TTL", 4*time.Minute),
			Timezone:   GetEnv("WORKER_TIMEZONE", ""),
			RunOnStart: GetEnvAsBool("WORKER_RUN_ON_START", false),
		},
		RateLimits: RateLimitConfig{
			MaxActiveCollections:    GetEnvAsInt("RATE_LIMIT_MAX_ACTIVE_COLLECTIONS", 500),
			MaxDailyMessages:        GetEnvAsInt("RATE_LIMIT_MAX_DAILY_MESSAGES", 100),
			MinHoursBetweenMessages: GetEnvAsFloat("RATE_LIMIT_MIN_HOURS_BETWEEN_MESSAGES", 4),
		},
		Alert: AlertConfig{
			WebhookURL:     GetEnv("ALERT_WEBHOOK_URL", ""),
			IterationCount: GetEnvAsInt("ALERT_ITERATION_COUNT", 0),
		},
		Auth: AuthConfig{
			OpsAPIKey: GetEnv("OPS_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
