// Package sqlite provides SQLite-backed persistence for usage ledger
// entries, so daily counters survive restarts.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"mealsnap/pkg/provider/types"
	"mealsnap/pkg/usage"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_entries (
	provider      TEXT PRIMARY KEY,
	request_count INTEGER NOT NULL,
	total_cost    TEXT NOT NULL,
	last_used     INTEGER NOT NULL
);`

// Store provides SQLite-backed persistence for usage entries.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Get(provider types.Provider) (usage.Entry, bool, error) {
	row := s.sqlDB.QueryRow(
		`SELECT provider, request_count, total_cost, last_used FROM usage_entries WHERE provider = ?`,
		string(provider),
	)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return usage.Entry{}, false, nil
	}
	if err != nil {
		return usage.Entry{}, false, err
	}

	return entry, true, nil
}

func (s *Store) Put(entry usage.Entry) error {
	_, err := s.sqlDB.Exec(
		`INSERT INTO usage_entries (provider, request_count, total_cost, last_used)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET
		   request_count = excluded.request_count,
		   total_cost = excluded.total_cost,
		   last_used = excluded.last_used`,
		string(entry.Provider),
		entry.RequestCount,
		entry.TotalCost.String(),
		toMillis(entry.LastUsed),
	)
	if err != nil {
		return fmt.Errorf("upsert usage entry: %w", err)
	}
	return nil
}

func (s *Store) All() ([]usage.Entry, error) {
	rows, err := s.sqlDB.Query(
		`SELECT provider, request_count, total_cost, last_used FROM usage_entries ORDER BY provider`,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage entries: %w", err)
	}
	defer rows.Close()

	var entries []usage.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage entries: %w", err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (usage.Entry, error) {
	var (
		entry    usage.Entry
		provider string
		cost     string
		lastUsed int64
	)
	if err := row.Scan(&provider, &entry.RequestCount, &cost, &lastUsed); err != nil {
		if err == sql.ErrNoRows {
			return usage.Entry{}, err
		}
		return usage.Entry{}, fmt.Errorf("scan usage entry: %w", err)
	}

	parsed, err := decimal.NewFromString(cost)
	if err != nil {
		return usage.Entry{}, fmt.Errorf("parse stored cost %q: %w", cost, err)
	}

	entry.Provider = types.Provider(provider)
	entry.TotalCost = parsed
	entry.LastUsed = fromMillis(lastUsed)

	return entry, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
