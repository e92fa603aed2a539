// Package store is the relational persistence layer for processed
// URLs, the scrape queue, and per-run API cost sessions.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a sqlite-backed repository.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the sqlite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_urls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT UNIQUE NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			fields_filled TEXT NOT NULL DEFAULT '[]',
			error_message TEXT,
			processed_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scraped_urls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT UNIQUE NOT NULL,
			ad_id TEXT,
			advertiser TEXT,
			scraped_at DATETIME NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS api_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_start DATETIME NOT NULL,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cost TEXT NOT NULL DEFAULT '0',
			api_calls INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	// Additive migration: add error_category / details if an older
	// schema is missing them, per the persistence contract.
	for _, col := range []struct{ name, ddl string }{
		{"error_category", "ALTER TABLE processed_urls ADD COLUMN error_category TEXT"},
		{"details", "ALTER TABLE processed_urls ADD COLUMN details TEXT"},
	} {
		has, err := s.hasColumn("processed_urls", col.name)
		if err != nil {
			return err
		}
		if !has {
			if _, err := s.db.Exec(col.ddl); err != nil {
				return fmt.Errorf("migrate add %s: %w", col.name, err)
			}
		}
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, ctyp string
			notnull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctyp, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// ProcessedURL is one outcome row.
type ProcessedURL struct {
	URL           string
	Source        string
	Status        string
	FieldsFilled  []string
	ErrorMessage  string
	ErrorCategory string
	Details       string
	ProcessedAt   time.Time
}

// IsURLProcessed reports whether url already has a processed_urls row.
func (s *Store) IsURLProcessed(url string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM processed_urls WHERE url = ?`, url).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is url processed: %w", err)
	}
	return n > 0, nil
}

// AddProcessedURL upserts a result row, matching on url.
func (s *Store) AddProcessedURL(p ProcessedURL) error {
	fields, err := json.Marshal(p.FieldsFilled)
	if err != nil {
		return fmt.Errorf("marshal fields_filled: %w", err)
	}
	if p.ProcessedAt.IsZero() {
		p.ProcessedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(`
		INSERT INTO processed_urls (url, source, status, fields_filled, error_message, error_category, details, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			source=excluded.source,
			status=excluded.status,
			fields_filled=excluded.fields_filled,
			error_message=excluded.error_message,
			error_category=excluded.error_category,
			details=excluded.details,
			processed_at=excluded.processed_at
	`, p.URL, p.Source, p.Status, string(fields), p.ErrorMessage, p.ErrorCategory, p.Details, p.ProcessedAt)
	if err != nil {
		return fmt.Errorf("add processed url: %w", err)
	}
	return nil
}

// MarkURLProcessed flips the scraped_urls queue row's processed flag.
func (s *Store) MarkURLProcessed(url string) error {
	_, err := s.db.Exec(`UPDATE scraped_urls SET processed = 1 WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("mark url processed: %w", err)
	}
	return nil
}

// PendingScrapedURLs returns queued URLs not yet processed, oldest first.
func (s *Store) PendingScrapedURLs(limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT url FROM scraped_urls WHERE processed = 0 ORDER BY scraped_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending scraped urls: %w", err)
	}
	defer rows.Close()
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// EnqueueScrapedURL inserts a queue row if the URL is not already queued.
func (s *Store) EnqueueScrapedURL(url, adID, advertiser string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO scraped_urls (url, ad_id, advertiser, scraped_at, processed)
		VALUES (?, ?, ?, ?, 0)
	`, url, adID, advertiser, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueue scraped url: %w", err)
	}
	return nil
}

// ApiSessionSummary is the per-run cost snapshot persisted at run end.
type ApiSessionSummary struct {
	SessionStart time.Time
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         string
	APICalls     int
}

// SaveAPISessionCosts persists a run's aggregated token/cost usage.
func (s *Store) SaveAPISessionCosts(summary ApiSessionSummary) error {
	_, err := s.db.Exec(`
		INSERT INTO api_sessions (session_start, model, input_tokens, output_tokens, cost, api_calls)
		VALUES (?, ?, ?, ?, ?, ?)
	`, summary.SessionStart, summary.Model, summary.InputTokens, summary.OutputTokens, summary.Cost, summary.APICalls)
	if err != nil {
		return fmt.Errorf("save api session costs: %w", err)
	}
	return nil
}
