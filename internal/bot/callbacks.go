package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	if !b.cfg.IsUserAllowed(cb.From.ID) {
		b.reply(chatID, "Access denied.")
		return
	}

	action, arg, ok := parseCallbackData(cb.Data)
	if !ok {
		return
	}

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cbUntrackConfirm:
		username, err := ParseUsername(arg)
		if err != nil {
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Stop watching @%s?", username))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, stop", cmdUntrack+":"+username),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", cbNoop+":"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send untrack confirmation", "error", err)
		}
	case cmdUntrack:
		b.handleUntrack(ctx, chatID, cb.From.ID, arg)
	}
}
