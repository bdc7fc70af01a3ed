// Package model defines the domain types used across the application.
package model

import "time"

// User is a Telegram user who has run /start.
type User struct {
	ID         int64
	TelegramID int64
	CreatedAt  time.Time
}

// TrackedAccount is one user's subscription to an Instagram username.
type TrackedAccount struct {
	ID        int64
	UserID    int64
	Username  string
	CreatedAt time.Time
}

// Subscription pairs a tracked username with the chat that wants its stories.
type Subscription struct {
	Username string
	ChatID   int64
}

// MediaKind is the type of media a story carries.
type MediaKind string

// Supported media kinds.
const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Item is a single story published by a tracked account.
// Items are identified by (account, ID).
type Item struct {
	ID        string
	Kind      MediaKind
	URL       string
	TakenAt   time.Time
	ExpiresAt time.Time
}

// RenderOptions controls how an outgoing notification is rendered.
type RenderOptions struct {
	ParseMode             string
	DisableWebPagePreview bool
}
