// Package config handles application configuration from environment variables.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN, required"`
	DatabasePath     string        `env:"DATABASE_PATH, default=./data/bot.db"`
	LogLevel         string        `env:"LOG_LEVEL, default=info"`
	AllowedUsers     []int64       `env:"ALLOWED_USERS"`
	PollInterval     time.Duration `env:"POLL_INTERVAL, default=5m"`
	PollConcurrency  int           `env:"POLL_CONCURRENCY, default=4"`
	CycleTimeout     time.Duration `env:"CYCLE_TIMEOUT, default=45s"`
	// FeedURLTemplate must contain a single %s taking the channel id.
	// Empty selects the default upload feed endpoint in the feed package.
	FeedURLTemplate string `env:"FEED_URL_TEMPLATE"`
	// NotifyBacklog delivers the uploads already visible at subscribe time
	// on the first poll instead of treating them as seen.
	NotifyBacklog bool `env:"NOTIFY_BACKLOG, default=false"`
}

// Load reads configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PollConcurrency <= 0 {
		return fmt.Errorf("POLL_CONCURRENCY must be positive, got %d", c.PollConcurrency)
	}
	if c.CycleTimeout <= 0 {
		return fmt.Errorf("CYCLE_TIMEOUT must be positive, got %s", c.CycleTimeout)
	}
	if c.FeedURLTemplate != "" && strings.Count(c.FeedURLTemplate, "%s") != 1 {
		return fmt.Errorf("FEED_URL_TEMPLATE must contain exactly one %%s, got %q", c.FeedURLTemplate)
	}
	return nil
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
