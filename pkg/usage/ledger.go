// Package usage tracks per-provider daily request counts and spend, and
// hosts the budget predicate evaluated before any network call.
package usage

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mealsnap/pkg/provider/types"
)

// Entry is one provider's counters for the current calendar day.
type Entry struct {
	Provider     types.Provider
	RequestCount int
	TotalCost    decimal.Decimal
	LastUsed     time.Time
}

// Store persists ledger entries across restarts.
type Store interface {
	Get(provider types.Provider) (Entry, bool, error)
	Put(entry Entry) error
	All() ([]Entry, error)
}

// Ledger owns read/update semantics for daily usage counters.
//
// An entry whose last-used date is not the current day is stale: it is
// zeroed and persisted the moment it is read, so prior-day history does not
// survive a day boundary.
type Ledger struct {
	store Store
	now   func() time.Time

	mu sync.Mutex
}

// Option customizes ledger construction.
type Option func(*Ledger)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a ledger over a persistence store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DailyUsage returns today's counters for a provider, rolling stale entries
// over to zero first.
func (l *Ledger) DailyUsage(provider types.Provider) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.todayLocked(provider)
}

// RecordUsage adds one successful request at the given cost.
//
// Callers invoke this exactly once per confirmed provider success; failed
// attempts never reach it.
func (l *Ledger) RecordUsage(provider types.Provider, cost decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.todayLocked(provider)
	if err != nil {
		return err
	}

	entry.RequestCount++
	entry.TotalCost = entry.TotalCost.Add(cost)
	entry.LastUsed = l.now()

	if err := l.store.Put(entry); err != nil {
		return fmt.Errorf("persist usage for %s: %w", provider, err)
	}

	return nil
}

// CanMakeRequest reports whether one more request fits under the daily cost
// ceiling. Pure with respect to network activity; the destructive rollover
// of stale entries still applies.
func (l *Ledger) CanMakeRequest(provider types.Provider, maxDailyCost decimal.Decimal) (bool, error) {
	descriptor, ok := types.DescriptorFor(provider)
	if !ok {
		return false, fmt.Errorf("no descriptor for provider %s", provider)
	}

	entry, err := l.DailyUsage(provider)
	if err != nil {
		return false, err
	}

	projected := entry.TotalCost.Add(descriptor.CostPerRequest)
	return projected.LessThanOrEqual(maxDailyCost), nil
}

func (l *Ledger) todayLocked(provider types.Provider) (Entry, error) {
	now := l.now()

	entry, ok, err := l.store.Get(provider)
	if err != nil {
		return Entry{}, fmt.Errorf("load usage for %s: %w", provider, err)
	}

	if ok && sameDay(entry.LastUsed, now) {
		return entry, nil
	}

	entry = Entry{
		Provider:  provider,
		TotalCost: decimal.Zero,
		LastUsed:  now,
	}
	if err := l.store.Put(entry); err != nil {
		return Entry{}, fmt.Errorf("persist usage reset for %s: %w", provider, err)
	}

	return entry, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
