package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var configVars = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_USERS",
	"POLL_INTERVAL", "POLL_CONCURRENCY", "CYCLE_TIMEOUT",
	"FEED_URL_TEMPLATE", "NOTIFY_BACKLOG",
}

// clearEnv unsets every config variable, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configVars {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: &Config{
				TelegramBotToken: "test-token",
				DatabasePath:     "./data/bot.db",
				LogLevel:         "info",
				AllowedUsers:     nil,
				PollInterval:     5 * time.Minute,
				PollConcurrency:  4,
				CycleTimeout:     45 * time.Second,
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"DATABASE_PATH":      "/tmp/bot.db",
				"LOG_LEVEL":          "debug",
				"ALLOWED_USERS":      "111,222,333",
				"POLL_INTERVAL":      "90s",
				"POLL_CONCURRENCY":   "8",
				"CYCLE_TIMEOUT":      "20s",
				"FEED_URL_TEMPLATE":  "https://example.com/feeds/%s.xml",
				"NOTIFY_BACKLOG":     "true",
			},
			want: &Config{
				TelegramBotToken: "tok",
				DatabasePath:     "/tmp/bot.db",
				LogLevel:         "debug",
				AllowedUsers:     []int64{111, 222, 333},
				PollInterval:     90 * time.Second,
				PollConcurrency:  8,
				CycleTimeout:     20 * time.Second,
				FeedURLTemplate:  "https://example.com/feeds/%s.xml",
				NotifyBacklog:    true,
			},
		},
		{
			name: "invalid user id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "123,abc",
			},
			wantErr: true,
		},
		{
			name: "non-positive interval",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"POLL_INTERVAL":      "0s",
			},
			wantErr: true,
		},
		{
			name: "non-positive concurrency",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"POLL_CONCURRENCY":   "-1",
			},
			wantErr: true,
		},
		{
			name: "non-positive cycle timeout",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"CYCLE_TIMEOUT":      "-5s",
			},
			wantErr: true,
		},
		{
			name: "template without placeholder",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"FEED_URL_TEMPLATE":  "https://example.com/feeds/videos.xml",
			},
			wantErr: true,
		},
		{
			name: "template with two placeholders",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"FEED_URL_TEMPLATE":  "https://example.com/%s/%s.xml",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if got != tt.want {
				t.Errorf("IsUserAllowed(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}
