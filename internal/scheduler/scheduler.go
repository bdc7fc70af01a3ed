// Package scheduler runs the monitoring cycle: it checks every tracked
// account for new stories, announces them, and drops accounts that keep
// coming back as not found.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"story_bot/internal/dedup"
	"story_bot/internal/failure"
	"story_bot/internal/fetcher"
	"story_bot/internal/metrics"
	"story_bot/internal/model"
	"story_bot/internal/notify"
	"story_bot/internal/session"
)

// SubscriptionStore is the part of the storage the scheduler needs.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	RemoveAccountGlobally(ctx context.Context, username string) (int64, error)
}

// Session keeps the platform login usable.
type Session interface {
	Ensure(ctx context.Context) error
}

// Fetcher lists the active stories of an account.
type Fetcher interface {
	Stories(ctx context.Context, handle string) ([]model.Item, error)
}

// Notifier announces a story to a set of chats.
type Notifier interface {
	NotifyAll(ctx context.Context, account string, item model.Item, subscribers []int64) notify.Result
}

// Scheduler periodically checks tracked accounts and sends notifications.
type Scheduler struct {
	store    SubscriptionStore
	session  Session
	fetcher  Fetcher
	notifier Notifier
	ledger   *dedup.Ledger
	failures *failure.Tracker
	log      *slog.Logger

	tick     time.Duration
	minDelay time.Duration
	maxDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Scheduler with a 2-minute interval and a 1-3s pause between
// accounts.
func New(store SubscriptionStore, sess Session, f Fetcher, n Notifier, ledger *dedup.Ledger, failures *failure.Tracker, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		session:  sess,
		fetcher:  f,
		notifier: n,
		ledger:   ledger,
		failures: failures,
		log:      log,
		tick:     2 * time.Minute,
		minDelay: 1 * time.Second,
		maxDelay: 3 * time.Second,
		sleep:    sleepContext,
	}
}

// SetTickInterval overrides the default 2-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetDelayRange overrides the pause between two account checks.
func (s *Scheduler) SetDelayRange(minDelay, maxDelay time.Duration) {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	s.minDelay = minDelay
	s.maxDelay = maxDelay
}

// Run starts the scheduler loop. The first cycle starts immediately. It
// returns nil once ctx is cancelled and the error of a cycle that cannot
// recover on its own.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.checkAll(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.checkAll(ctx); err != nil {
				return err
			}
		}
	}
}

type target struct {
	account     string
	subscribers []int64
}

// groupSubscriptions groups chat ids by account, keeping the order in which
// accounts first appear and dropping repeated chat ids.
func groupSubscriptions(subs []model.Subscription) []target {
	index := make(map[string]int)
	seen := make(map[string]map[int64]bool)
	var targets []target
	for _, sub := range subs {
		i, ok := index[sub.Username]
		if !ok {
			i = len(targets)
			index[sub.Username] = i
			seen[sub.Username] = make(map[int64]bool)
			targets = append(targets, target{account: sub.Username})
		}
		if seen[sub.Username][sub.ChatID] {
			continue
		}
		seen[sub.Username][sub.ChatID] = true
		targets[i].subscribers = append(targets[i].subscribers, sub.ChatID)
	}
	return targets
}

func (s *Scheduler) checkAll(ctx context.Context) error {
	start := time.Now()
	metrics.CyclesTotal.Inc()

	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		s.log.Error("list subscriptions", "error", err)
		return nil
	}
	targets := groupSubscriptions(subs)
	if len(targets) == 0 {
		s.log.Debug("no accounts tracked, skipping cycle")
		return nil
	}

	if err := s.session.Ensure(ctx); err != nil {
		if session.IsFatal(err) {
			metrics.RecordSessionCheck(metrics.ResultFatal)
			s.log.Error("session requires manual intervention, stopping", "error", err)
			return fmt.Errorf("ensure session: %w", err)
		}
		metrics.RecordSessionCheck(metrics.ResultFailed)
		s.log.Warn("session not usable, skipping cycle", "error", err)
		return nil
	}
	metrics.RecordSessionCheck(metrics.ResultOK)

	s.log.Info("checking accounts", "accounts", len(targets))
	for i, t := range targets {
		if ctx.Err() != nil {
			return nil
		}
		removed := s.processAccount(ctx, t)
		if removed || i == len(targets)-1 {
			continue
		}
		if err := s.pause(ctx); err != nil {
			return nil
		}
	}

	metrics.RecordCycle(time.Since(start), len(targets))
	s.log.Info("cycle finished",
		"accounts", len(targets),
		"seen_stories", s.ledger.Len(),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// processAccount checks one account and reports whether it was removed.
func (s *Scheduler) processAccount(ctx context.Context, t target) bool {
	s.log.Debug("checking account", "account", t.account)

	items, err := s.fetcher.Stories(ctx, t.account)
	switch {
	case err == nil:
	case fetcher.IsNotFound(err):
		metrics.RecordAccountCheck(metrics.ResultNotFound)
		return s.handleNotFound(ctx, t.account, err)
	default:
		if ctx.Err() != nil {
			return false
		}
		if fetcher.IsTransient(err) {
			metrics.RecordAccountCheck(metrics.ResultTransient)
		} else {
			metrics.RecordAccountCheck(metrics.ResultFailed)
		}
		s.failures.Reset(t.account)
		s.log.Warn("check account", "account", t.account, "error", err)
		return false
	}

	metrics.RecordAccountCheck(metrics.ResultOK)
	s.failures.Reset(t.account)

	unseen := s.ledger.FilterUnseen(t.account, items)
	for _, item := range unseen {
		if ctx.Err() != nil {
			return false
		}
		s.log.Info("new story", "account", t.account, "story_id", item.ID, "kind", item.Kind)
		res := s.notifier.NotifyAll(ctx, t.account, item, t.subscribers)
		s.ledger.MarkSeen(t.account, item)
		metrics.NewStories.Inc()
		if res.Failed > 0 {
			s.log.Warn("some notifications failed", "account", t.account, "story_id", item.ID, "sent", res.Sent, "failed", res.Failed)
		}
	}
	return false
}

func (s *Scheduler) handleNotFound(ctx context.Context, account string, cause error) bool {
	count, reached := s.failures.Fail(account)
	s.log.Warn("account not found", "account", account, "attempt", count, "threshold", s.failures.Threshold(), "error", cause)
	if !reached {
		return false
	}

	n, err := s.store.RemoveAccountGlobally(ctx, account)
	if err != nil {
		s.log.Error("remove account, will retry on next failure", "account", account, "error", err)
		return false
	}
	s.failures.Reset(account)
	metrics.AccountsRemoved.Inc()
	s.log.Info("account removed after repeated failures", "account", account, "subscriptions", n)
	return true
}

func (s *Scheduler) pause(ctx context.Context) error {
	d := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		d += rand.N(span)
	}
	return s.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
