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

type Config struct {
	App       AppConfig
	Telegram  TelegramConfig
	Database  DatabaseConfig
	Review    ReviewConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	Environment string
	LogFilePath string
	CatalogFile string // imported into the catalog on startup when set
}

type TelegramConfig struct {
	Token        string
	AdminUserIDs []int64
}

type DatabaseConfig struct {
	Type string // sqlite or postgres
	Path string
	URL  string
}

type ReviewConfig struct {
	ThinkTime   time.Duration // delay before a miss is applied
	SessionIdle time.Duration // idle chats are dropped after this
}

type SchedulerConfig struct {
	Enabled                 bool
	NotificationStartHour   int
	NotificationEndHour     int
	DefaultNotificationHour int
	DailyResetAt            string // HH:MM
	Location                *time.Location
}

// Load reads .env if present, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only
func FromEnv() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "logs/flashbot.log"),
			CatalogFile: getEnv("CATALOG_FILE", ""),
		},
		Telegram: TelegramConfig{
			Token: getEnv("TELEGRAM_BOT_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Type: getEnv("DB_TYPE", "sqlite"),
			Path: getEnv("DB_PATH", "data/flashbot.db"),
			URL:  getEnv("DATABASE_URL", ""),
		},
		Review: ReviewConfig{
			ThinkTime:   time.Duration(getEnvAsInt("THINK_TIME_SECONDS", 5)) * time.Second,
			SessionIdle: time.Duration(getEnvAsInt("SESSION_IDLE_HOURS", 12)) * time.Hour,
		},
		Scheduler: SchedulerConfig{
			Enabled:                 getEnvAsBool("ENABLE_SCHEDULER", true),
			NotificationStartHour:   getEnvAsInt("NOTIFICATION_START_HOUR", 4),
			NotificationEndHour:     getEnvAsInt("NOTIFICATION_END_HOUR", 18),
			DefaultNotificationHour: getEnvAsInt("DEFAULT_NOTIFICATION_HOUR", 9),
			DailyResetAt:            getEnv("DAILY_RESET_AT", "00:00"),
		},
	}

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	ids, err := parseIDList(getEnv("ADMIN_USER_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_USER_IDS: %w", err)
	}
	cfg.Telegram.AdminUserIDs = ids

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Scheduler.Location = loc

	if _, err := time.Parse("15:04", cfg.Scheduler.DailyResetAt); err != nil {
		return nil, fmt.Errorf("invalid DAILY_RESET_AT %q: %w", cfg.Scheduler.DailyResetAt, err)
	}

	for _, h := range []int{cfg.Scheduler.NotificationStartHour, cfg.Scheduler.NotificationEndHour, cfg.Scheduler.DefaultNotificationHour} {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("notification hour %d out of range", h)
		}
	}
	if cfg.Review.ThinkTime < 0 {
		cfg.Review.ThinkTime = 0
	}

	return cfg, nil
}

// IsProduction reports whether GO_ENV is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func parseIDList(value string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
