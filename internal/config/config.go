package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/archive"
	"github.com/alfredjeanlab/threadlive/internal/delivery"
)

type Config struct {
	Store       string // THREADLIVE_STORE ("postgres" or "memory", default "postgres")
	DatabaseURL string // THREADLIVE_DATABASE_URL (required for postgres)
	GRPCAddr    string // THREADLIVE_GRPC_ADDR (default ":9090"; empty = no gRPC listener)
	HTTPAddr    string // THREADLIVE_HTTP_ADDR (default ":8080")
	NATSURL     string // THREADLIVE_NATS_URL (optional, empty = in-process wake-ups only)
	AuthToken   string // THREADLIVE_AUTH_TOKEN (optional, empty = auth disabled)

	LogLevel  slog.Level // THREADLIVE_LOG_LEVEL (debug|info|warn|error, default info)
	LogFormat string     // THREADLIVE_LOG_FORMAT (text|json, default text)

	// Delivery settings
	Delivery delivery.Config
	// THREADLIVE_POLL_INTERVAL, THREADLIVE_STREAM_INTERVAL, THREADLIVE_HEARTBEAT_INTERVAL,
	// THREADLIVE_MAX_STREAM_DURATION, THREADLIVE_DEFAULT_WAIT, THREADLIVE_MAX_WAIT,
	// THREADLIVE_MAX_LONG_LIVED

	AnswersPerHour   int           // THREADLIVE_ANSWERS_PER_HOUR (default 5)
	ViewerStaleAfter time.Duration // THREADLIVE_VIEWER_IDLE (default 90s)

	// Retention settings
	Retention         archive.Config // THREADLIVE_RETENTION_INTERVAL (default 1h; 0 = disabled), THREADLIVE_RETENTION_MAX_AGE (default 720h)
	ArchiveS3Bucket   string         // THREADLIVE_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string         // THREADLIVE_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string         // THREADLIVE_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string         // THREADLIVE_ARCHIVE_S3_PREFIX (default "threadlive/events")
	ArchiveGitRepo    string         // THREADLIVE_ARCHIVE_GIT_REPO (enables git when set; path to clone)
	ArchiveGitDir     string         // THREADLIVE_ARCHIVE_GIT_DIR (default "events")
	ArchiveGitBranch  string         // THREADLIVE_ARCHIVE_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		Store:             envOrDefault("THREADLIVE_STORE", "postgres"),
		DatabaseURL:       os.Getenv("THREADLIVE_DATABASE_URL"),
		GRPCAddr:          envOrDefault("THREADLIVE_GRPC_ADDR", ":9090"),
		HTTPAddr:          envOrDefault("THREADLIVE_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("THREADLIVE_NATS_URL"),
		AuthToken:         os.Getenv("THREADLIVE_AUTH_TOKEN"),
		LogFormat:         envOrDefault("THREADLIVE_LOG_FORMAT", "text"),
		Delivery:          delivery.DefaultConfig(),
		AnswersPerHour:    5,
		ViewerStaleAfter:  90 * time.Second,
		Retention:         archive.DefaultConfig(),
		ArchiveS3Bucket:   os.Getenv("THREADLIVE_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("THREADLIVE_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("THREADLIVE_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Prefix:   envOrDefault("THREADLIVE_ARCHIVE_S3_PREFIX", "threadlive/events"),
		ArchiveGitRepo:    os.Getenv("THREADLIVE_ARCHIVE_GIT_REPO"),
		ArchiveGitDir:     envOrDefault("THREADLIVE_ARCHIVE_GIT_DIR", "events"),
		ArchiveGitBranch:  envOrDefault("THREADLIVE_ARCHIVE_GIT_BRANCH", "main"),
	}

	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("THREADLIVE_DATABASE_URL is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("THREADLIVE_STORE: unknown store %q", c.Store)
	}

	level, err := parseLevel(envOrDefault("THREADLIVE_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	c.LogLevel = level
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return nil, fmt.Errorf("THREADLIVE_LOG_FORMAT: unknown format %q", c.LogFormat)
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"THREADLIVE_POLL_INTERVAL", &c.Delivery.PollInterval},
		{"THREADLIVE_STREAM_INTERVAL", &c.Delivery.StreamInterval},
		{"THREADLIVE_HEARTBEAT_INTERVAL", &c.Delivery.HeartbeatInterval},
		{"THREADLIVE_MAX_STREAM_DURATION", &c.Delivery.MaxStreamDuration},
		{"THREADLIVE_DEFAULT_WAIT", &c.Delivery.DefaultWait},
		{"THREADLIVE_MAX_WAIT", &c.Delivery.MaxWait},
		{"THREADLIVE_VIEWER_IDLE", &c.ViewerStaleAfter},
		{"THREADLIVE_RETENTION_INTERVAL", &c.Retention.Interval},
		{"THREADLIVE_RETENTION_MAX_AGE", &c.Retention.MaxAge},
	} {
		if err := durationEnv(d.key, d.dst); err != nil {
			return nil, err
		}
	}

	if err := intEnv("THREADLIVE_ANSWERS_PER_HOUR", &c.AnswersPerHour); err != nil {
		return nil, err
	}
	maxLongLived := int(c.Delivery.MaxLongLived)
	if err := intEnv("THREADLIVE_MAX_LONG_LIVED", &maxLongLived); err != nil {
		return nil, err
	}
	c.Delivery.MaxLongLived = int64(maxLongLived)

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func intEnv(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return fmt.Errorf("%s: must not be negative", key)
	}
	*dst = n
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("THREADLIVE_LOG_LEVEL: %w", err)
	}
	return level, nil
}
