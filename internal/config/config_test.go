package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DBPath != "coolive.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "coolive.db")
	}
	if cfg.AuthRateLimit != 10 || cfg.AuthRateWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 10/1m", cfg.AuthRateLimit, cfg.AuthRateWindow)
	}
	if cfg.InviteRateLimit != 20 {
		t.Errorf("InviteRateLimit = %d, want 20", cfg.InviteRateLimit)
	}
	if cfg.Avatar.Configured() {
		t.Error("avatar storage should be unconfigured by default")
	}
	if cfg.Push.Enabled() {
		t.Error("push should be disabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COOLIVE_PORT", "9090")
	t.Setenv("COOLIVE_BASE_URL", "https://coolive.example/")
	t.Setenv("COOLIVE_ALLOWED_ORIGINS", "app.coolive.example, localhost:*")
	t.Setenv("COOLIVE_SESSION_PURGE_INTERVAL", "15m")
	t.Setenv("COOLIVE_S3_BUCKET", "avatars")
	t.Setenv("COOLIVE_S3_ACCESS_KEY", "key")
	t.Setenv("COOLIVE_S3_SECRET_KEY", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.BaseURL != "https://coolive.example" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "localhost:*" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.SessionPurge != 15*time.Minute {
		t.Errorf("SessionPurge = %v, want 15m", cfg.SessionPurge)
	}
	if !cfg.Avatar.Configured() {
		t.Error("avatar storage should be configured")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	t.Setenv("COOLIVE_AUTH_RATE_LIMIT", "lots")
	t.Setenv("COOLIVE_SHUTDOWN_TIMEOUT", "soon")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid values")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("COOLIVE_DB_PATH=/tmp/from-file.db\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv.Load never overrides variables that are already set.
	t.Setenv("COOLIVE_DB_PATH", "")
	os.Unsetenv("COOLIVE_DB_PATH")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/from-file.db" {
		t.Errorf("DBPath = %q, want value from file", cfg.DBPath)
	}
	os.Unsetenv("COOLIVE_DB_PATH")
}

func TestLoadMissingEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestLoadBackupFallsBackToAvatarBucket(t *testing.T) {
	t.Setenv("COOLIVE_S3_BUCKET", "media")
	t.Setenv("COOLIVE_S3_ACCESS_KEY", "key")
	t.Setenv("COOLIVE_S3_SECRET_KEY", "secret")
	t.Setenv("COOLIVE_BACKUP_PREFIX", "/nightly/")
	t.Setenv("COOLIVE_BACKUP_PASSPHRASE", "pass")
	t.Setenv("COOLIVE_BACKUP_INTERVAL", "24h")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backup.Bucket != "media" || cfg.Backup.AccessKey != "key" {
		t.Errorf("backup = %+v, want avatar bucket credentials", cfg.Backup)
	}
	if cfg.Backup.Prefix != "nightly" {
		t.Errorf("Prefix = %q, want nightly", cfg.Backup.Prefix)
	}
	if !cfg.Backup.Scheduled() {
		t.Error("backups should be scheduled")
	}
	if cfg.Backup.Retention != 30*24*time.Hour {
		t.Errorf("Retention = %v, want 720h", cfg.Backup.Retention)
	}
}

func TestLoadInviteRateLimitIsSeparate(t *testing.T) {
	t.Setenv("COOLIVE_AUTH_RATE_LIMIT", "3")
	t.Setenv("COOLIVE_INVITE_RATE_LIMIT", "50")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthRateLimit != 3 || cfg.InviteRateLimit != 50 {
		t.Errorf("limits = auth %d, invite %d; want 3, 50", cfg.AuthRateLimit, cfg.InviteRateLimit)
	}

	t.Setenv("COOLIVE_INVITE_RATE_LIMIT", "0")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-positive invite limit")
	}
}
