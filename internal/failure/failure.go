// Package failure counts consecutive "not found" results per account.
package failure

import "sync"

// DefaultThreshold is the number of consecutive not-found results after
// which an account is considered gone.
const DefaultThreshold = 3

// Tracker holds a consecutive failure counter per account.
type Tracker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
}

// New creates a Tracker. A threshold below 1 falls back to DefaultThreshold.
func New(threshold int) *Tracker {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

// Fail records one more not-found result for account and reports the new
// count and whether the threshold has been reached.
func (t *Tracker) Fail(account string) (count int, reached bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[account]++
	count = t.counts[account]
	return count, count >= t.threshold
}

// Reset clears the counter of account.
func (t *Tracker) Reset(account string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, account)
}

// Count returns the current consecutive failure count of account.
func (t *Tracker) Count(account string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[account]
}

// Threshold returns the count at which Fail reports reached.
func (t *Tracker) Threshold() int {
	return t.threshold
}
