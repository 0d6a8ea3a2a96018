package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mealsnap/pkg/provider/types"
	"mealsnap/pkg/usage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if _, ok, err := store.Get(types.ProviderOpenAI); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	entry := usage.Entry{
		Provider:     types.ProviderOpenAI,
		RequestCount: 4,
		TotalCost:    decimal.RequireFromString("0.008"),
		LastUsed:     time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC),
	}
	if err := store.Put(entry); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	loaded, ok, err := store.Get(types.ProviderOpenAI)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Fatal("expected entry after Put")
	}
	if loaded.RequestCount != 4 {
		t.Fatalf("request count = %d, want 4", loaded.RequestCount)
	}
	if !loaded.TotalCost.Equal(entry.TotalCost) {
		t.Fatalf("total cost = %s, want %s", loaded.TotalCost, entry.TotalCost)
	}
	if !loaded.LastUsed.Equal(entry.LastUsed) {
		t.Fatalf("last used = %v, want %v", loaded.LastUsed, entry.LastUsed)
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	store := openTestStore(t)

	first := usage.Entry{
		Provider:     types.ProviderGemini,
		RequestCount: 1,
		TotalCost:    decimal.RequireFromString("0.001"),
		LastUsed:     time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.Put(first); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	second := first
	second.RequestCount = 2
	second.TotalCost = decimal.RequireFromString("0.002")
	if err := store.Put(second); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	loaded, ok, err := store.Get(types.ProviderGemini)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if loaded.RequestCount != 2 {
		t.Fatalf("request count = %d, want 2", loaded.RequestCount)
	}
}

func TestStoreAll(t *testing.T) {
	store := openTestStore(t)

	for i, p := range types.All() {
		entry := usage.Entry{
			Provider:     p,
			RequestCount: i + 1,
			TotalCost:    decimal.NewFromInt(int64(i)),
			LastUsed:     time.Now().UTC(),
		}
		if err := store.Put(entry); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}

	entries, err := store.All()
	if err != nil {
		t.Fatalf("All error: %v", err)
	}
	if len(entries) != len(types.All()) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(types.All()))
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	entry := usage.Entry{
		Provider:     types.ProviderAnthropic,
		RequestCount: 7,
		TotalCost:    decimal.RequireFromString("0.021"),
		LastUsed:     time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.Put(entry); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	loaded, ok, err := reopened.Get(types.ProviderAnthropic)
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if loaded.RequestCount != 7 {
		t.Fatalf("request count = %d, want 7", loaded.RequestCount)
	}
}
