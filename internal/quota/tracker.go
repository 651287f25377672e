// Package quota tracks the daily match allowance for free-tier users.
package quota

import (
	"time"

	"bookworm/pkg/domain"
	"bookworm/pkg/store"
)

// FreeDailyLimit is the number of likes a FREE user may send per day.
const FreeDailyLimit = 5

// Tracker answers and records per-user daily quota consumption. The day
// boundary is server-local midnight.
type Tracker struct {
	store store.Store
	now   func() time.Time
}

func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st, now: time.Now}
}

// Today returns the current quota day.
func (t *Tracker) Today() time.Time {
	n := t.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// Remaining reports how many likes the user can still send today. Premium
// users have no cap and get -1; a stale reset date counts as a fresh day.
func (t *Tracker) Remaining(user domain.User) (int, error) {
	if user.PremiumActive(t.now()) {
		return -1, nil
	}
	q, ok, err := t.store.GetQuota(user.ID)
	if err != nil {
		return 0, err
	}
	used := 0
	if ok && !q.ResetDate.Before(t.Today()) {
		used = q.UsedToday
	}
	left := FreeDailyLimit - used
	if left < 0 {
		left = 0
	}
	return left, nil
}

// Consume records one like against today's quota. Premium users are exempt
// and nothing is written for them.
func (t *Tracker) Consume(user domain.User) error {
	if user.PremiumActive(t.now()) {
		return nil
	}
	return t.store.IncrementQuota(user.ID, t.Today())
}

// ResetStale rewinds counters whose reset date predates today. Invoked by
// the scheduled reset endpoint; the increment path already handles stale
// rows, so this is bookkeeping for reads.
func (t *Tracker) ResetStale() (int64, error) {
	return t.store.ResetStaleQuotas(t.Today())
}

// WithClock overrides the time source. Tests only.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}
