package bot

import (
	"fmt"
	"strings"

	"story_bot/internal/model"
)

const (
	msgStart = `Welcome to Story Watch Bot!

I keep an eye on Instagram accounts and message you as soon as they post a new story.

Quick start:
/track <username> - start watching an account
/list - see who you are watching

Use /help for the full command reference.`

	msgHelp = `Commands:
/track <username> - watch an account for new stories
/untrack <username> - stop watching an account
/list - show the accounts you watch (with remove buttons)
/help - show this message

Example: /track instagram

Accounts that stay unreachable (deleted, renamed, private) are removed automatically after a few checks.`

	msgNeedStart       = "Please run /start first."
	msgInvalidUsername = "That doesn't look like an Instagram username. Usernames are up to 30 letters, digits, dots or underscores.\nExample: /track instagram"
	msgGenericError    = "Something went wrong, please try again."
)

// FormatAccountList formats the accounts a user tracks.
func FormatAccountList(accounts []model.TrackedAccount) string {
	if len(accounts) == 0 {
		return "You are not watching anyone yet. Use /track <username> to start."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are watching %d account(s):\n", len(accounts))
	for i, a := range accounts {
		fmt.Fprintf(&b, "\n%d. @%s (since %s)", i+1, a.Username, a.CreatedAt.UTC().Format("2006-01-02"))
	}
	return b.String()
}

func formatTracked(username string) string {
	return fmt.Sprintf("Now watching @%s. You'll get a message whenever they post a new story.", username)
}

func formatAlreadyTracking(username string) string {
	return fmt.Sprintf("You are already watching @%s.", username)
}

func formatUntracked(username string) string {
	return fmt.Sprintf("Stopped watching @%s.", username)
}

func formatNotTracking(username string) string {
	return fmt.Sprintf("You are not watching @%s.", username)
}
