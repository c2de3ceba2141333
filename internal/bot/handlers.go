package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tubewatch/internal/dedup"
	"tubewatch/internal/feed"
	"tubewatch/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to tubewatch!

Follow video channels and get a message here for every new upload.

Quick start:
1. /subscribe <channel> — start watching a channel (id or URL)
2. /list — see what this chat is watching
3. /unsubscribe <channel> — stop watching

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/subscribe <channel> — watch a channel (id or channel URL)
/unsubscribe <channel> — stop watching a channel
/list — channels this chat is watching
/update — poll all channels now

Channels are polled on a fixed interval; /update forces a pass without
waiting for the next tick. Several chats can watch the same channel,
each gets its own notification.`)
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64, args string) {
	channelID, err := ParseChannelRef(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /subscribe <channel id or URL>\n%v", err))
		return
	}

	// Validate against the upstream before persisting anything.
	res, err := b.feeds.Fetch(ctx, channelID)
	if err != nil {
		if feed.IsNotFound(err) {
			b.reply(chatID, fmt.Sprintf("Channel %q does not exist upstream.", channelID))
			return
		}
		b.reply(chatID, fmt.Sprintf("Could not fetch the channel feed: %v", err))
		return
	}

	title := res.Title
	if title == "" {
		title = channelID
	}

	ch := model.Channel{ID: channelID, Title: title}
	created, err := b.store.Subscribe(ctx, ch, chatID, b.dedupSeed(res.Items))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save subscription: %v", err))
		return
	}
	if !created {
		b.reply(chatID, fmt.Sprintf("Already watching %q here.", title))
		return
	}
	b.reply(chatID, fmt.Sprintf("Now watching %q. New uploads will be posted here.", title))
}

// dedupSeed builds the initial fingerprint for a channel's first
// subscription. By default the uploads visible at subscribe time count as
// seen, so a new subscription never floods the chat with the backlog.
// NOTIFY_BACKLOG=true opts into delivering the visible uploads on the
// first poll instead.
func (b *Bot) dedupSeed(items []model.Item) model.DedupState {
	if b.cfg.NotifyBacklog {
		return model.DedupState{}
	}
	_, seed := dedup.Filter(items, nil)
	if seed.LastPublished.IsZero() {
		// Empty or undated feed: anything published from now on is new.
		seed.LastPublished = time.Now().UTC()
	}
	return seed
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64, args string) {
	channelID, err := ParseChannelRef(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /unsubscribe <channel id or URL>\n%v", err))
		return
	}

	title := channelID
	if ch, err := b.store.GetChannel(ctx, channelID); err == nil {
		title = ch.Title
	}

	removed, err := b.store.Unsubscribe(ctx, channelID, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to remove subscription: %v", err))
		return
	}
	if !removed {
		b.reply(chatID, fmt.Sprintf("This chat is not watching %q.", title))
		return
	}
	b.reply(chatID, fmt.Sprintf("Stopped watching %q.", title))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	channels, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(channels) == 0 {
		b.reply(chatID, "This chat is not watching any channels yet. Use /subscribe <channel> to add one.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatChannelList(channels))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = unsubscribeKeyboard(channels)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send channel list", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleUpdate(ctx context.Context, chatID int64) {
	if b.poller == nil {
		b.reply(chatID, "Forced polls are not available right now.")
		return
	}
	b.reply(chatID, "Polling all channels now.")
	// The pass can take a while; run it off the update loop.
	go b.poller.ForceUpdate(ctx)
}
