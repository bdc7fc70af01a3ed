package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"story_bot/internal/model"
	"story_bot/internal/storage"
)

const (
	cmdTrack         = "track"
	cmdUntrack       = "untrack"
	cbUntrackConfirm = "untrack_confirm"
	cbNoop           = "noop"
)

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64) {
	if _, err := b.store.CreateUser(ctx, userID); err != nil {
		b.log.Error("create user", "user_id", userID, "error", err)
		b.reply(chatID, msgGenericError)
		return
	}
	b.reply(chatID, msgStart)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, msgHelp)
}

// currentUser loads the registered user, replying with a hint when the user
// never ran /start.
func (b *Bot) currentUser(ctx context.Context, chatID, userID int64) (*model.User, bool) {
	user, err := b.store.GetUserByTelegramID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, msgNeedStart)
		return nil, false
	}
	if err != nil {
		b.log.Error("get user", "user_id", userID, "error", err)
		b.reply(chatID, msgGenericError)
		return nil, false
	}
	return user, true
}

func (b *Bot) handleTrack(ctx context.Context, chatID, userID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /track <username>")
		return
	}
	username, err := ParseUsername(args)
	if err != nil {
		b.reply(chatID, msgInvalidUsername)
		return
	}

	user, ok := b.currentUser(ctx, chatID, userID)
	if !ok {
		return
	}

	_, err = b.store.TrackAccount(ctx, user.ID, username)
	switch {
	case errors.Is(err, storage.ErrAlreadyTracking):
		b.reply(chatID, formatAlreadyTracking(username))
	case err != nil:
		b.log.Error("track account", "user_id", userID, "account", username, "error", err)
		b.reply(chatID, msgGenericError)
	default:
		b.log.Info("account tracked", "user_id", userID, "account", username)
		b.reply(chatID, formatTracked(username))
	}
}

func (b *Bot) handleUntrack(ctx context.Context, chatID, userID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /untrack <username>")
		return
	}
	username, err := ParseUsername(args)
	if err != nil {
		b.reply(chatID, msgInvalidUsername)
		return
	}

	user, ok := b.currentUser(ctx, chatID, userID)
	if !ok {
		return
	}

	removed, err := b.store.UntrackAccount(ctx, user.ID, username)
	if err != nil {
		b.log.Error("untrack account", "user_id", userID, "account", username, "error", err)
		b.reply(chatID, msgGenericError)
		return
	}
	if !removed {
		b.reply(chatID, formatNotTracking(username))
		return
	}
	b.log.Info("account untracked", "user_id", userID, "account", username)
	b.reply(chatID, formatUntracked(username))
}

func (b *Bot) handleList(ctx context.Context, chatID, userID int64) {
	user, ok := b.currentUser(ctx, chatID, userID)
	if !ok {
		return
	}

	accounts, err := b.store.ListAccounts(ctx, user.ID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatAccountList(accounts))
	msg.DisableWebPagePreview = true
	if len(accounts) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(accounts))
		for _, a := range accounts {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Stop watching @"+a.Username, cbUntrackConfirm+":"+a.Username),
			))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send account list", "chat_id", chatID, "error", err)
	}
}
