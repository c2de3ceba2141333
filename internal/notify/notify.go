// Package notify fans new uploads out to their subscribed chats.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"tubewatch/internal/model"
)

// Sender posts a message to a single chat. The Telegram bot implements it.
type Sender interface {
	PostMessage(chatID int64, text string) error
}

// Delivery is the outcome of one per-target dispatch.
type Delivery struct {
	Target int64
	Err    error
}

// Notifier delivers one message per new item per subscribed target. Targets
// fail independently: an unreachable chat is recorded and skipped, never
// blocking the rest.
type Notifier struct {
	sender Sender
	log    *slog.Logger

	sendGap    time.Duration
	retryBase  time.Duration
	maxRetries uint64
}

// New creates a Notifier with delivery pacing suited to the Telegram API.
func New(sender Sender, log *slog.Logger) *Notifier {
	return &Notifier{
		sender:     sender,
		log:        log,
		sendGap:    50 * time.Millisecond, // stay under ~20 messages/sec
		retryBase:  250 * time.Millisecond,
		maxRetries: 2,
	}
}

// SetSendGap overrides the pause between consecutive sends. Call before use.
func (n *Notifier) SetSendGap(d time.Duration) {
	if d >= 0 {
		n.sendGap = d
	}
}

// SetRetryPolicy overrides the backoff base and retry budget for transient
// send failures. Call before use.
func (n *Notifier) SetRetryPolicy(base time.Duration, maxRetries uint64) {
	if base > 0 {
		n.retryBase = base
	}
	n.maxRetries = maxRetries
}

// Notify delivers item to every target, retrying transient send failures
// with Fibonacci backoff. The result holds one Delivery per target in input
// order. Cancelling ctx abandons the targets not yet attempted; their
// deliveries carry the context error.
func (n *Notifier) Notify(ctx context.Context, channelTitle string, item model.Item, targets []int64) []Delivery {
	text := FormatUpload(channelTitle, item)

	deliveries := make([]Delivery, 0, len(targets))
	for i, target := range targets {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(n.sendGap):
			}
		}
		err := n.send(ctx, target, text)
		if err != nil {
			n.log.Error("deliver notification",
				"chat_id", target,
				"item_id", item.ID,
				"error", err,
			)
		}
		deliveries = append(deliveries, Delivery{Target: target, Err: err})
	}
	return deliveries
}

func (n *Notifier) send(ctx context.Context, target int64, text string) error {
	backoff := retry.WithMaxRetries(n.maxRetries, retry.NewFibonacci(n.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := n.sender.PostMessage(target, text); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// FormatUpload renders one upload as a notification message.
func FormatUpload(channelTitle string, item model.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n%s", channelTitle, item.Title)
	if item.Link != "" {
		b.WriteString("\n")
		b.WriteString(item.Link)
	}
	if !item.Published.IsZero() {
		fmt.Fprintf(&b, "\n\nPublished: %s", item.Published.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}
