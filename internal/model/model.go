// Package model defines the domain types used across the application.
package model

import "time"

// Channel represents a watched upload channel. The ID is the upstream
// identifier and is treated as opaque.
type Channel struct {
	ID        string
	Title     string
	GoneAt    *time.Time
	CreatedAt time.Time
}

// Gone reports whether the upstream feed currently resolves to nothing.
// The flag is set when a fetch sees the channel missing and cleared by the
// next successful fetch.
func (c *Channel) Gone() bool { return c.GoneAt != nil }

// Subscription links a channel to a Telegram chat that receives its uploads.
type Subscription struct {
	ChannelID string
	ChatID    int64
	CreatedAt time.Time
}

// Item is a single upload entry taken from a channel feed.
type Item struct {
	ID        string
	Title     string
	Link      string
	Published time.Time
}

// DedupState is the durable fingerprint of the most recently seen uploads
// of one channel. LastPublished never moves backwards. RecentIDs holds the
// item ids sharing that exact timestamp, oldest first, so items published
// at the same instant are still detected exactly once.
type DedupState struct {
	LastPublished time.Time
	RecentIDs     []string
}

// Seen reports whether id is inside the recent-id window.
func (s *DedupState) Seen(id string) bool {
	for _, known := range s.RecentIDs {
		if known == id {
			return true
		}
	}
	return false
}
