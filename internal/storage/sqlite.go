package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"story_bot/internal/model"
	"story_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateUser registers a Telegram user, returning the existing row if the
// user is already known.
func (s *SQLite) CreateUser(ctx context.Context, telegramID int64) (*model.User, error) {
	now := time.Now().UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (telegram_id, created_at) VALUES (?, ?)`,
		telegramID, now,
	); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUserByTelegramID(ctx, telegramID)
}

// GetUserByTelegramID returns the user with the given Telegram ID or ErrNotFound.
func (s *SQLite) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var u model.User
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, created_at FROM users WHERE telegram_id = ?`, telegramID,
	).Scan(&u.ID, &u.TelegramID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return &u, nil
}

// TrackAccount subscribes a user to an Instagram username.
// Returns ErrAlreadyTracking if the pair already exists.
func (s *SQLite) TrackAccount(ctx context.Context, userID int64, username string) (*model.TrackedAccount, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tracked_accounts (user_id, username, created_at) VALUES (?, ?, ?)`,
		userID, username, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert tracked account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrAlreadyTracking
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	acc := &model.TrackedAccount{ID: id, UserID: userID, Username: username}
	acc.CreatedAt, _ = time.Parse(timeLayout, now)
	return acc, nil
}

// UntrackAccount removes a single user's subscription. It reports whether a
// row was deleted.
func (s *SQLite) UntrackAccount(ctx context.Context, userID int64, username string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tracked_accounts WHERE user_id = ? AND username = ?`, userID, username,
	)
	if err != nil {
		return false, fmt.Errorf("delete tracked account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListAccounts returns the accounts a user tracks, oldest first.
func (s *SQLite) ListAccounts(ctx context.Context, userID int64) ([]model.TrackedAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, username, created_at FROM tracked_accounts WHERE user_id = ? ORDER BY id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tracked accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.TrackedAccount
	for rows.Next() {
		var a model.TrackedAccount
		var created string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Username, &created); err != nil {
			return nil, fmt.Errorf("scan tracked account: %w", err)
		}
		a.CreatedAt, _ = time.Parse(timeLayout, created)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListSubscriptions returns every (username, chat) pair, in insertion order.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.username, u.telegram_id
		 FROM tracked_accounts t
		 JOIN users u ON u.id = t.user_id
		 ORDER BY t.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		if err := rows.Scan(&sub.Username, &sub.ChatID); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// RemoveAccountGlobally deletes a username from every user's subscriptions
// and returns the number of rows removed.
func (s *SQLite) RemoveAccountGlobally(ctx context.Context, username string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracked_accounts WHERE username = ?`, username)
	if err != nil {
		return 0, fmt.Errorf("delete account globally: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
