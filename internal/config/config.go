package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/coolive/internal/avatar"
	"github.com/dukerupert/coolive/internal/backup"
	"github.com/dukerupert/coolive/internal/email"
	"github.com/dukerupert/coolive/internal/push"
)

const prefix = "COOLIVE_"

// Config aggregates all runtime settings.
type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	// AllowedOrigins lists host patterns accepted for cross-origin WebSocket upgrades.
	AllowedOrigins []string

	AuthRateLimit  int
	AuthRateWindow time.Duration
	SessionPurge   time.Duration
	ShutdownWait   time.Duration

	// InviteRateLimit caps invite emails per user per hour.
	InviteRateLimit int

	Avatar avatar.S3Config
	Backup backup.Config
	Email  email.Config
	Push   push.Config
}

// Load reads an optional env file, then COOLIVE_* variables. A missing env
// file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var errs []error
	cfg := &Config{
		Port:            getString("PORT", "8080"),
		DBPath:          getString("DB_PATH", "coolive.db"),
		BaseURL:         strings.TrimRight(getString("BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:        getString("LOG_LEVEL", "info"),
		LogFormat:       getString("LOG_FORMAT", "text"),
		AllowedOrigins:  getList("ALLOWED_ORIGINS"),
		AuthRateLimit:   getInt("AUTH_RATE_LIMIT", 10, &errs),
		AuthRateWindow:  getDuration("AUTH_RATE_WINDOW", time.Minute, &errs),
		InviteRateLimit: getInt("INVITE_RATE_LIMIT", 20, &errs),
		SessionPurge:    getDuration("SESSION_PURGE_INTERVAL", time.Hour, &errs),
		ShutdownWait:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		Avatar: avatar.S3Config{
			Endpoint:  os.Getenv(prefix + "S3_ENDPOINT"),
			Bucket:    os.Getenv(prefix + "S3_BUCKET"),
			Region:    getString("S3_REGION", "auto"),
			AccessKey: os.Getenv(prefix + "S3_ACCESS_KEY"),
			SecretKey: os.Getenv(prefix + "S3_SECRET_KEY"),
			PublicURL: os.Getenv(prefix + "S3_PUBLIC_URL"),
		},
		Email: email.Config{
			PostmarkToken: os.Getenv(prefix + "POSTMARK_TOKEN"),
			From:          getString("EMAIL_FROM", "Coolive <noreply@coolive.app>"),
		},
		Push: push.Config{
			VAPIDPublicKey:  os.Getenv(prefix + "VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv(prefix + "VAPID_PRIVATE_KEY"),
			Subscriber:      getString("VAPID_SUBSCRIBER", "mailto:noreply@coolive.app"),
		},
	}

	// Backups share the avatar bucket credentials unless given their own.
	cfg.Backup = backup.Config{
		Endpoint:   getString("BACKUP_S3_ENDPOINT", cfg.Avatar.Endpoint),
		Bucket:     getString("BACKUP_S3_BUCKET", cfg.Avatar.Bucket),
		Region:     getString("BACKUP_S3_REGION", cfg.Avatar.Region),
		AccessKey:  getString("BACKUP_S3_ACCESS_KEY", cfg.Avatar.AccessKey),
		SecretKey:  getString("BACKUP_S3_SECRET_KEY", cfg.Avatar.SecretKey),
		Prefix:     strings.Trim(getString("BACKUP_PREFIX", "backups"), "/"),
		Passphrase: os.Getenv(prefix + "BACKUP_PASSPHRASE"),
		Interval:   getDuration("BACKUP_INTERVAL", 0, &errs),
		Retention:  getDuration("BACKUP_RETENTION", 30*24*time.Hour, &errs),
	}

	if cfg.AuthRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("%sAUTH_RATE_LIMIT must be positive", prefix))
	}
	if cfg.InviteRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("%sINVITE_RATE_LIMIT must be positive", prefix))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(prefix + key)); val != "" {
		return val
	}
	return fallback
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(prefix+key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, fallback int, errs *[]error) int {
	val := strings.TrimSpace(os.Getenv(prefix + key))
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", prefix, key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	val := strings.TrimSpace(os.Getenv(prefix + key))
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", prefix, key, err))
		return fallback
	}
	return d
}
