// Package dedup remembers which stories have already been announced.
package dedup

import (
	"sync"

	"story_bot/internal/model"
)

type key struct {
	account string
	id      string
}

// Ledger is an in-memory set of (account, item id) pairs. It only grows and
// is lost on restart.
type Ledger struct {
	mu   sync.Mutex
	seen map[key]struct{}
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{seen: make(map[key]struct{})}
}

// FilterUnseen returns the items of account that were never marked seen,
// in their original order.
func (l *Ledger) FilterUnseen(account string, items []model.Item) []model.Item {
	l.mu.Lock()
	defer l.mu.Unlock()

	var unseen []model.Item
	for _, it := range items {
		if _, ok := l.seen[key{account, it.ID}]; !ok {
			unseen = append(unseen, it)
		}
	}
	return unseen
}

// MarkSeen records item as announced for account.
func (l *Ledger) MarkSeen(account string, item model.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key{account, item.ID}] = struct{}{}
}

// Seen reports whether id was already announced for account.
func (l *Ledger) Seen(account, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[key{account, id}]
	return ok
}

// Len returns the number of recorded pairs.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
