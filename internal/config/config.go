package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	RedisURL    string
	DatabaseURL string

	SweepCron      string
	SweepTimezone  string
	SweepLocation  *time.Location
	RunSweepOnBoot bool

	NotifyBaseURL    string
	ChatBaseURL      string
	NotifyToken      string
	NotifyTimeout    time.Duration
	NotifyRetries    int
	NotifyRatePerSec float64
	NotifyWorkers    int

	MessageOverrideDir string
	MetricsAddr        string

	MissionCancelPolicy string
	JournalMaxEntries   int64
	MaxWatchRetries     int
}

// Load reads the environment, after filling unset variables from a .env file
// in the working directory when one exists.
func Load() (*AppConfig, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		SweepCron:           "0 0 * * *",
		SweepTimezone:       "Asia/Seoul",
		NotifyTimeout:       5 * time.Second,
		NotifyRetries:       2,
		NotifyRatePerSec:    20,
		NotifyWorkers:       8,
		MetricsAddr:         ":9102",
		MissionCancelPolicy: "allow",
		JournalMaxEntries:   10000,
		MaxWatchRetries:     16,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("SWEEP_CRON")); v != "" {
		cfg.SweepCron = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_TIMEZONE")); v != "" {
		cfg.SweepTimezone = v
	}
	if v := strings.TrimSpace(os.Getenv("RUN_SWEEP_ON_BOOT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.RunSweepOnBoot = b
		}
	}

	cfg.NotifyBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("NOTIFY_BASE_URL")), "/")
	cfg.ChatBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("CHAT_BASE_URL")), "/")
	cfg.NotifyToken = strings.TrimSpace(os.Getenv("NOTIFY_TOKEN"))
	if v := strings.TrimSpace(os.Getenv("NOTIFY_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NotifyTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("NOTIFY_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.NotifyRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("NOTIFY_RATE_PER_SEC")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.NotifyRatePerSec = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("NOTIFY_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NotifyWorkers = n
		}
	}

	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))
	if v, ok := os.LookupEnv("METRICS_ADDR"); ok {
		// empty disables the endpoint
		cfg.MetricsAddr = strings.TrimSpace(v)
	}

	if v := strings.TrimSpace(os.Getenv("MISSION_CANCEL_POLICY")); v != "" {
		cfg.MissionCancelPolicy = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("JOURNAL_MAX_ENTRIES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.JournalMaxEntries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_WATCH_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxWatchRetries = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	loc, err := time.LoadLocation(cfg.SweepTimezone)
	if err != nil {
		return nil, fmt.Errorf("SWEEP_TIMEZONE %q: %w", cfg.SweepTimezone, err)
	}
	cfg.SweepLocation = loc

	return cfg, nil
}

// loadDotEnv copies entries from path into the environment without
// overriding variables that are already set.
func loadDotEnv(path string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, v := range env {
		if _, set := os.LookupEnv(k); !set {
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}
