package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingDatabaseURL is returned when no storage connection string is configured.
// No amount of retrying can fix a missing address, so startup must stop.
var ErrMissingDatabaseURL = errors.New("config: DATABASE_URL is required")

// Config holds the application configuration.
type Config struct {
	ServerPort  int
	DatabaseURL string
	JWTSecret   string
	AppEnv      string
	LogLevel    string
	CORSOrigins []string

	BackupPath      string        // Root directory for the file snapshot store
	BackupStore     string        // "file" or "memory"
	BackupInterval  time.Duration // 0 disables the scheduler unless BackupSchedule is set
	BackupSchedule  string        // Cron expression, takes precedence over BackupInterval
	BackupTimeout   time.Duration
	JobHistoryLimit int

	DBRetryBackoff   time.Duration
	DBHealthInterval time.Duration
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	cfg := &Config{
		ServerPort:     port,
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		BackupPath:     getEnv("BACKUP_PATH", "./backups"),
		BackupStore:    getEnv("BACKUP_STORE", "file"),
		BackupSchedule: getEnv("BACKUP_SCHEDULE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET is required")
	}
	if cfg.BackupStore != "file" && cfg.BackupStore != "memory" {
		return nil, fmt.Errorf("config: unknown BACKUP_STORE %q", cfg.BackupStore)
	}

	if cfg.BackupInterval, err = getDuration("BACKUP_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.BackupTimeout, err = getDuration("BACKUP_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DBRetryBackoff, err = getDuration("DB_RETRY_BACKOFF", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.DBHealthInterval, err = getDuration("DB_HEALTH_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobHistoryLimit, err = strconv.Atoi(getEnv("JOB_HISTORY_LIMIT", "50")); err != nil {
		return nil, fmt.Errorf("invalid JOB_HISTORY_LIMIT: %w", err)
	}
	if cfg.JobHistoryLimit <= 0 {
		return nil, fmt.Errorf("config: JOB_HISTORY_LIMIT must be positive, got %d", cfg.JobHistoryLimit)
	}

	return cfg, nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getDuration accepts Go duration strings ("90s", "6h") or a bare number of milliseconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
