// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"tubewatch/internal/model"
)

// ErrNotFound is returned when a referenced channel does not exist. Every
// other error from a Store means the store itself misbehaved; it never
// stands in for "no data".
var ErrNotFound = errors.New("storage: not found")

// Store is the interface for all persistence operations.
type Store interface {
	// Subscribe links target to ch, creating the channel row on first
	// contact and seeding its dedup state with seed unless one already
	// exists. Reports whether the subscription was created. Idempotent:
	// repeating an existing subscription returns false and changes
	// nothing, the seed included.
	Subscribe(ctx context.Context, ch model.Channel, target int64, seed model.DedupState) (bool, error)
	// Unsubscribe removes the (channel, target) link and reports whether
	// it existed. Removing the last subscription of a channel also drops
	// the channel row and its dedup state.
	Unsubscribe(ctx context.Context, channelID string, target int64) (bool, error)
	// ListSubscriptions returns the channels one chat is watching.
	ListSubscriptions(ctx context.Context, target int64) ([]model.Channel, error)
	// ListTargets returns the chats watching one channel.
	ListTargets(ctx context.Context, channelID string) ([]int64, error)
	// ListChannels returns every channel with at least one subscription.
	ListChannels(ctx context.Context) ([]model.Channel, error)
	GetChannel(ctx context.Context, channelID string) (*model.Channel, error)
	UpdateChannelTitle(ctx context.Context, channelID, title string) error
	// SetChannelGone flags or clears the channel as missing upstream.
	// Flagging keeps the earliest timestamp across repeated calls.
	SetChannelGone(ctx context.Context, channelID string, gone bool) error

	// LoadDedupState returns the stored fingerprint for the channel, or
	// (nil, nil) when none has been written yet.
	LoadDedupState(ctx context.Context, channelID string) (*model.DedupState, error)
	// CommitDedupState atomically replaces the channel's fingerprint.
	// It fails with ErrNotFound once the channel row is gone, so a poll
	// cycle racing an unsubscribe cannot resurrect dead state.
	CommitDedupState(ctx context.Context, channelID string, st model.DedupState) error

	Close() error
}
