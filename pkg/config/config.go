package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Telegram Bot configuration
	BotToken     string
	DinnerChatID int64
	DebugChatID  int64

	// Storage configuration
	DataDir string

	// Scheduling configuration
	Location       *time.Location
	ConfirmTimeout time.Duration

	// CalDAV calendar configuration (optional; scheduling works without it)
	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalendarEmails []string
	MeetingURL     string

	// Watcher configuration
	ShopURL          string
	SalesLastRunPath string
	SalesCountPath   string
	SalesInterval    time.Duration
	VaccineState     string
	VaccineInterval  time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{}

	// Required configurations
	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is required")
	}
	cfg.BotToken = botToken

	dinnerChatID := os.Getenv("DINNER_CHAT_ID")
	if dinnerChatID == "" {
		return nil, fmt.Errorf("DINNER_CHAT_ID environment variable is required")
	}
	cfg.DinnerChatID, err = strconv.ParseInt(dinnerChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DINNER_CHAT_ID: %w", err)
	}

	// Optional configurations with defaults
	debugChatID := getEnvWithDefault("DEBUG_CHAT_ID", dinnerChatID)
	cfg.DebugChatID, err = strconv.ParseInt(debugChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEBUG_CHAT_ID: %w", err)
	}

	cfg.DataDir = getEnvWithDefault("DATA_DIR", "./data")

	tz := getEnvWithDefault("TIMEZONE", "America/New_York")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	timeoutSec, err := strconv.Atoi(getEnvWithDefault("CONFIRM_TIMEOUT_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONFIRM_TIMEOUT_SECONDS: %w", err)
	}
	cfg.ConfirmTimeout = time.Duration(timeoutSec) * time.Second

	// Calendar configuration
	cfg.CalDAVURL = os.Getenv("CALDAV_URL")
	cfg.CalDAVUsername = os.Getenv("CALDAV_USERNAME")
	cfg.CalDAVPassword = os.Getenv("CALDAV_PASSWORD")
	cfg.MeetingURL = os.Getenv("MEETING_URL")
	if emails := os.Getenv("CALENDAR_EMAILS"); emails != "" {
		cfg.CalendarEmails = strings.Split(emails, ",")
	}

	// Watcher configuration
	cfg.ShopURL = getEnvWithDefault("SHOP_URL", "https://www.etsy.com/shop/WicksByWerby")
	cfg.SalesLastRunPath = os.Getenv("SALES_LAST_RUN_PATH")
	cfg.SalesCountPath = os.Getenv("SALES_COUNT_PATH")
	cfg.SalesInterval, err = time.ParseDuration(getEnvWithDefault("SALES_WATCH_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SALES_WATCH_INTERVAL: %w", err)
	}
	cfg.VaccineState = getEnvWithDefault("VACCINE_STATE", "MA")
	cfg.VaccineInterval, err = time.ParseDuration(getEnvWithDefault("VACCINE_WATCH_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid VACCINE_WATCH_INTERVAL: %w", err)
	}

	// Log configuration with sensitive data redacted
	logCfg := *cfg
	if len(logCfg.BotToken) > 8 {
		logCfg.BotToken = logCfg.BotToken[:8] + "...REDACTED..."
	}
	if logCfg.CalDAVPassword != "" {
		logCfg.CalDAVPassword = "...REDACTED..."
	}
	log.Printf("Configuration loaded: %+v", logCfg)
	return cfg, nil
}

// getEnvWithDefault returns the value of the environment variable or the default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
