// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"story_bot/internal/model"
)

// Sentinel errors returned by Storage implementations.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyTracking = errors.New("account already tracked")
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateUser(ctx context.Context, telegramID int64) (*model.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)

	TrackAccount(ctx context.Context, userID int64, username string) (*model.TrackedAccount, error)
	UntrackAccount(ctx context.Context, userID int64, username string) (bool, error)
	ListAccounts(ctx context.Context, userID int64) ([]model.TrackedAccount, error)

	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	RemoveAccountGlobally(ctx context.Context, username string) (int64, error)

	Close() error
}
