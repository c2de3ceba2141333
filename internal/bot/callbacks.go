package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tubewatch/internal/model"
)

// Callback actions; the data format is "<action>:<channel id>".
const (
	cbUnsubscribeAsk     = "unsub"
	cbUnsubscribeConfirm = "unsub_do"
	cbNoop               = "noop"
)

// unsubscribeKeyboard builds one unsubscribe button per listed channel.
func unsubscribeKeyboard(channels []model.Channel) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				"Unsubscribe "+shortTitle(ch),
				cbUnsubscribeAsk+":"+ch.ID,
			),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, channelID, ok := strings.Cut(cb.Data, ":")
	if !ok || channelID == "" {
		return
	}

	b.log.Info("callback",
		"action", action,
		"channel_id", channelID,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cbUnsubscribeAsk:
		title := channelID
		if ch, err := b.store.GetChannel(ctx, channelID); err == nil {
			title = ch.Title
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Stop watching %q here?", title))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, unsubscribe", cbUnsubscribeConfirm+":"+channelID),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", cbNoop+":-"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send unsubscribe confirmation", "error", err)
		}
	case cbUnsubscribeConfirm:
		b.handleUnsubscribe(ctx, chatID, channelID)
	}
}
