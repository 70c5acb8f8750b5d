package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the tracker.
type Config struct {
	DatabaseURL   string
	CheckInterval time.Duration
	Retention     time.Duration
	Location      *time.Location
	WeekStart     time.Weekday

	NotifyTimeout    time.Duration
	NotifyRatePerSec int

	SMTP          SMTPConfig
	TelegramToken string

	LogLevel  string
	LogFormat string
}

// SMTPConfig describes the outgoing mail server. The email channel is
// disabled when Host is empty.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// Load reads configuration from environment variables (and an optional .env
// file) with sane defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		DatabaseURL:      env("DATABASE_URL"),
		CheckInterval:    parseMinutes(env("CHECK_INTERVAL_MINUTES")),
		Retention:        parseDays(env("RETENTION_DAYS")),
		WeekStart:        time.Sunday,
		NotifyTimeout:    parseSeconds(env("NOTIFY_TIMEOUT_SECONDS")),
		NotifyRatePerSec: parseInt(env("NOTIFY_RATE_PER_SEC")),
		SMTP: SMTPConfig{
			Host:     env("SMTP_HOST"),
			Port:     parseInt(env("SMTP_PORT")),
			Username: env("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     env("SMTP_FROM"),
		},
		TelegramToken: env("TELEGRAM_TOKEN"),
		LogLevel:      strings.ToLower(env("LOG_LEVEL")),
		LogFormat:     strings.ToLower(env("LOG_FORMAT")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "kitchenboard.db"
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.Retention == 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.NotifyTimeout == 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	if cfg.NotifyRatePerSec == 0 {
		cfg.NotifyRatePerSec = 5
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}

	loc, err := parseLocation(env("TIMEZONE"))
	if err != nil {
		return cfg, err
	}
	cfg.Location = loc

	if raw := env("WEEK_START"); raw != "" {
		day, err := parseWeekday(raw)
		if err != nil {
			return cfg, err
		}
		cfg.WeekStart = day
	}

	if !cfg.SMTP.Enabled() && cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("SMTP_HOST or TELEGRAM_TOKEN is required")
	}
	if cfg.SMTP.Enabled() && cfg.SMTP.From == "" {
		return cfg, fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseInt(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func parseMinutes(raw string) time.Duration {
	return time.Duration(parseInt(raw)) * time.Minute
}

func parseSeconds(raw string) time.Duration {
	return time.Duration(parseInt(raw)) * time.Second
}

func parseDays(raw string) time.Duration {
	return time.Duration(parseInt(raw)) * 24 * time.Hour
}

func parseLocation(raw string) (*time.Location, error) {
	if raw == "" || strings.EqualFold(raw, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", raw, err)
	}
	return loc, nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	name := strings.ToLower(raw)
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid WEEK_START %q", raw)
}
