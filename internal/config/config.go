package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cheapfinder/backend/internal/apperror"
)

// SMTPConfig holds outgoing mail settings for email alerts.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Config struct {
	// Server
	Port string
	Env  string // "development", "production"

	// Storage
	DatabaseURL string
	RedisURL    string // optional; enables the cross-process run lock

	// CORS
	AllowedOrigins []string

	// Scheduler
	SchedulerEnabled bool
	PriceCheckHour   int // local hour, 0-23

	// Price check pipeline
	RequestDelay      time.Duration // per-domain spacing
	MaxConcurrency    int
	RetryBound        int // attempts per task, first one included
	RunTimeout        time.Duration
	TaskMaxWait       time.Duration
	HTTPTimeout       time.Duration
	SaveHTMLSnapshots bool
	SnapshotDir       string

	// Headless browser fallback for JS-rendered retailers
	BrowserEnabled  bool
	BrowserMaxPages int

	// Alerts
	AlertOnTrackedSale bool
	DeliveryAttempts   int
	SMTP               SMTPConfig
	AlertEmailTo       string
	TelegramBotToken   string
	TelegramChatID     int64
}

// Load reads configuration from the environment. Variables in a .env file in
// the working directory are loaded first without overriding the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/cheapfinder?sslmode=disable"),
		RedisURL:    os.Getenv("REDIS_URL"),

		// CORS
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),

		// Scheduler
		SchedulerEnabled: getBoolEnv("SCHEDULER_ENABLED", true),
		PriceCheckHour:   getIntEnv("PRICE_CHECK_HOUR", 6),

		// Price check pipeline
		RequestDelay:      getSecondsEnv("REQUEST_DELAY_SECONDS", 2*time.Second),
		MaxConcurrency:    getIntEnv("MAX_CONCURRENCY", 8),
		RetryBound:        getIntEnv("RETRY_BOUND", 3),
		RunTimeout:        getDurationEnv("RUN_TIMEOUT", 45*time.Minute),
		TaskMaxWait:       getDurationEnv("TASK_MAX_WAIT", 2*time.Minute),
		HTTPTimeout:       getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		SaveHTMLSnapshots: getBoolEnv("SAVE_HTML_SNAPSHOTS", false),
		SnapshotDir:       getEnv("SNAPSHOT_DIR", "snapshots"),

		// Browser
		BrowserEnabled:  getBoolEnv("BROWSER_ENABLED", false),
		BrowserMaxPages: getIntEnv("BROWSER_MAX_PAGES", 3),

		// Alerts
		AlertOnTrackedSale: getBoolEnv("ALERT_ON_TRACKED_SALE", false),
		DeliveryAttempts:   getIntEnv("DELIVERY_ATTEMPTS", 4),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getIntEnv("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("SMTP_FROM"),
		},
		AlertEmailTo:     os.Getenv("ALERT_EMAIL_TO"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   getInt64Env("TELEGRAM_CHAT_ID", 0),
	}
}

// Validate checks the pipeline options that have a fixed valid range.
func (c *Config) Validate() error {
	var errs []error
	if c.PriceCheckHour < 0 || c.PriceCheckHour > 23 {
		errs = append(errs, apperror.ValidationError("PRICE_CHECK_HOUR", "must be between 0 and 23"))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, apperror.ValidationError("MAX_CONCURRENCY", "must be at least 1"))
	}
	if c.RetryBound < 1 || c.RetryBound > 10 {
		errs = append(errs, apperror.ValidationError("RETRY_BOUND", "must be between 1 and 10"))
	}
	if c.RequestDelay < 0 {
		errs = append(errs, apperror.ValidationError("REQUEST_DELAY_SECONDS", "must not be negative"))
	}
	if c.DeliveryAttempts < 1 {
		errs = append(errs, apperror.ValidationError("DELIVERY_ATTEMPTS", "must be at least 1"))
	}
	if c.BrowserEnabled && c.BrowserMaxPages < 1 {
		errs = append(errs, apperror.ValidationError("BROWSER_MAX_PAGES", "must be at least 1"))
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, apperror.ValidationError("TELEGRAM_CHAT_ID", "is required when TELEGRAM_BOT_TOKEN is set"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// EmailEnabled reports whether both the SMTP server and a recipient are set.
func (c *Config) EmailEnabled() bool {
	return c.SMTP.Host != "" && c.AlertEmailTo != ""
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getSecondsEnv reads a possibly fractional number of seconds.
func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultValue
}
