// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken  string
	InstagramUsername string
	InstagramPassword string
	DatabasePath      string
	LogLevel          string
	AllowedUsers      []int64
	CheckInterval     time.Duration
	BrowserHeadless   bool
	ChromePath        string
	NotifyRate        int
	MetricsAddr       string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	igUser := os.Getenv("INSTAGRAM_USERNAME")
	if igUser == "" {
		return nil, fmt.Errorf("INSTAGRAM_USERNAME is required")
	}
	igPass := os.Getenv("INSTAGRAM_PASSWORD")
	if igPass == "" {
		return nil, fmt.Errorf("INSTAGRAM_PASSWORD is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	interval := 2 * time.Minute
	if raw := os.Getenv("CHECK_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CHECK_INTERVAL %q: %w", raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("CHECK_INTERVAL must be positive, got %s", d)
		}
		interval = d
	}

	headless := true
	if raw := os.Getenv("BROWSER_HEADLESS"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid BROWSER_HEADLESS %q: %w", raw, err)
		}
		headless = v
	}

	rate := 20
	if raw := os.Getenv("NOTIFY_RATE"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("NOTIFY_RATE must be a positive integer, got %q", raw)
		}
		rate = v
	}

	return &Config{
		TelegramBotToken:  token,
		InstagramUsername: igUser,
		InstagramPassword: igPass,
		DatabasePath:      dbPath,
		LogLevel:          logLevel,
		AllowedUsers:      allowedUsers,
		CheckInterval:     interval,
		BrowserHeadless:   headless,
		ChromePath:        os.Getenv("CHROME_PATH"),
		NotifyRate:        rate,
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
