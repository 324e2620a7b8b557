package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "s")
	if _, err := Load(); !errors.Is(err, ErrMissingDatabaseURL) {
		t.Fatalf("Load() err = %v, want %v", err, ErrMissingDatabaseURL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "records.db")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != 8080 || cfg.BackupStore != "file" || cfg.BackupInterval != 0 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.BackupTimeout != 5*time.Minute || cfg.DBRetryBackoff != 5*time.Second || cfg.JobHistoryLimit != 50 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoad_Durations(t *testing.T) {
	t.Setenv("DATABASE_URL", "records.db")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("BACKUP_INTERVAL", "6h")
	t.Setenv("DB_RETRY_BACKOFF", "1500")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackupInterval != 6*time.Hour {
		t.Fatalf("BackupInterval = %v, want 6h", cfg.BackupInterval)
	}
	if cfg.DBRetryBackoff != 1500*time.Millisecond {
		t.Fatalf("DBRetryBackoff = %v, want 1.5s", cfg.DBRetryBackoff)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins = %q", cfg.CORSOrigins)
	}
}

func TestLoad_Invalid(t *testing.T) {
	for key, value := range map[string]string{
		"BACKUP_STORE":      "s3",
		"BACKUP_INTERVAL":   "soon",
		"JOB_HISTORY_LIMIT": "0",
		"PORT":              "http",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "records.db")
			t.Setenv("JWT_SECRET", "s")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", key, value)
			}
		})
	}
}
